package engine

import (
	"context"
	"syscall"

	"github.com/bentsi/charybdisfs/internal/syscalltag"
	"github.com/jacobsa/fuse/fuseops"
	"golang.org/x/sys/unix"
)

func (fs *fileSystem) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.Mkdir, func() error {
		childPath, ok := fs.paths.Join(uint64(op.Parent), op.Name)
		if !ok {
			return syscall.ENOENT
		}
		if err := unix.Mkdir(childPath, uint32(op.Mode.Perm())); err != nil {
			return errnoError(err)
		}

		ino, attrs, err := statPath(childPath)
		if err != nil {
			return errnoError(err)
		}
		fs.paths.Put(ino, childPath)

		op.Entry = fuseops.ChildInodeEntry{Child: fuseops.InodeID(ino), Attributes: attrs}
		return nil
	})
}

func (fs *fileSystem) MkNode(ctx context.Context, op *fuseops.MkNodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.Mknod, func() error {
		childPath, ok := fs.paths.Join(uint64(op.Parent), op.Name)
		if !ok {
			return syscall.ENOENT
		}
		if err := unix.Mknod(childPath, uint32(op.Mode), 0); err != nil {
			return errnoError(err)
		}

		ino, attrs, err := statPath(childPath)
		if err != nil {
			return errnoError(err)
		}
		fs.paths.Put(ino, childPath)

		op.Entry = fuseops.ChildInodeEntry{Child: fuseops.InodeID(ino), Attributes: attrs}
		return nil
	})
}

func (fs *fileSystem) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.Create, func() error {
		childPath, ok := fs.paths.Join(uint64(op.Parent), op.Name)
		if !ok {
			return syscall.ENOENT
		}

		flags := unix.O_CREAT | unix.O_TRUNC | unix.O_RDWR
		fd, err := unix.Open(childPath, flags, uint32(op.Mode.Perm()))
		if err != nil {
			return errnoError(err)
		}

		ino, attrs, err := statPath(childPath)
		if err != nil {
			unix.Close(fd)
			return errnoError(err)
		}
		fs.paths.Put(ino, childPath)
		fs.descs.Insert(ino, fd)

		op.Entry = fuseops.ChildInodeEntry{Child: fuseops.InodeID(ino), Attributes: attrs}
		op.Handle = fuseops.HandleID(ino)
		return nil
	})
}

func (fs *fileSystem) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.Symlink, func() error {
		childPath, ok := fs.paths.Join(uint64(op.Parent), op.Name)
		if !ok {
			return syscall.ENOENT
		}
		if err := unix.Symlink(op.Target, childPath); err != nil {
			return errnoError(err)
		}

		ino, attrs, err := statPath(childPath)
		if err != nil {
			return errnoError(err)
		}
		fs.paths.Put(ino, childPath)

		op.Entry = fuseops.ChildInodeEntry{Child: fuseops.InodeID(ino), Attributes: attrs}
		return nil
	})
}

func (fs *fileSystem) CreateLink(ctx context.Context, op *fuseops.CreateLinkOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.Link, func() error {
		oldPath, ok := fs.paths.Get(uint64(op.Target))
		if !ok {
			return syscall.ENOENT
		}
		newPath, ok := fs.paths.Join(uint64(op.Parent), op.Name)
		if !ok {
			return syscall.ENOENT
		}
		if err := unix.Link(oldPath, newPath); err != nil {
			return errnoError(err)
		}

		fs.paths.Put(uint64(op.Target), newPath)

		attrs, err := fs.attributesForLocked(uint64(op.Target))
		if err != nil {
			return errnoError(err)
		}
		op.Entry = fuseops.ChildInodeEntry{Child: op.Target, Attributes: attrs}
		return nil
	})
}

func (fs *fileSystem) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.Rename, func() error {
		oldPath, ok := fs.paths.Join(uint64(op.OldParent), op.OldName)
		if !ok {
			return syscall.ENOENT
		}
		newPath, ok := fs.paths.Join(uint64(op.NewParent), op.NewName)
		if !ok {
			return syscall.ENOENT
		}

		ino, err := inodeOf(oldPath)
		if err != nil {
			return errnoError(err)
		}

		if err := unix.Rename(oldPath, newPath); err != nil {
			return errnoError(err)
		}

		if replaceErr := fs.paths.ReplacePath(ino, oldPath, newPath); replaceErr != nil {
			fatalInvariant("rename: %s", replaceErr)
		}
		return nil
	})
}

// jacobsa/fuse's RenameOp does not carry a flags field in the version
// vendored here, so Rename performs no check for RENAME_EXCHANGE or
// RENAME_NOREPLACE: every request that reaches it is carried out as a plain
// rename, and no EINVAL is returned for rename flags. See DESIGN.md.

func (fs *fileSystem) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.Rmdir, func() error {
		return fs.removeLocked(uint64(op.Parent), op.Name, unix.Rmdir)
	})
}

func (fs *fileSystem) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.Unlink, func() error {
		return fs.removeLocked(uint64(op.Parent), op.Name, unix.Unlink)
	})
}

// removeLocked stats the victim to learn its inode, performs hostRemove,
// then forgets the path - shared by RmDir and Unlink.
func (fs *fileSystem) removeLocked(parent uint64, name string, hostRemove func(string) error) error {
	victimPath, ok := fs.paths.Join(parent, name)
	if !ok {
		return syscall.ENOENT
	}

	ino, err := inodeOf(victimPath)
	if err != nil {
		return errnoError(err)
	}

	if err := hostRemove(victimPath); err != nil {
		return errnoError(err)
	}

	if forgetErr := fs.paths.ForgetPath(ino, victimPath); forgetErr != nil {
		fatalInvariant("remove: %s", forgetErr)
	}
	return nil
}
