package engine

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/bentsi/charybdisfs/internal/syscalltag"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/pkg/xattr"
	"golang.org/x/sys/unix"
)

func (fs *fileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.Lookup, func() error {
		if op.Name == "." || op.Name == ".." {
			return syscall.EINVAL
		}

		childPath, ok := fs.paths.Join(uint64(op.Parent), op.Name)
		if !ok {
			return syscall.ENOENT
		}

		ino, attrs, err := statPath(childPath)
		if err != nil {
			return errnoError(err)
		}

		fs.paths.Put(ino, childPath)

		op.Entry = fuseops.ChildInodeEntry{
			Child:      fuseops.InodeID(ino),
			Attributes: attrs,
		}
		return nil
	})
}

func (fs *fileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.GetAttr, func() error {
		attrs, err := fs.attributesForLocked(uint64(op.Inode))
		if err != nil {
			return errnoError(err)
		}
		op.Attributes = attrs
		return nil
	})
}

// attributesForLocked stats the inode via its open descriptor if one
// exists (fstat), otherwise via any of its known paths (lstat), per
// the "operate on the descriptor when one is provided, otherwise on the
// path" rule for setattr, generalized to any attribute read.
func (fs *fileSystem) attributesForLocked(inode uint64) (fuseops.InodeAttributes, error) {
	if fd, ok := fs.descs.FD(inode); ok {
		return fstatAttributes(fd)
	}
	path, ok := fs.paths.Get(inode)
	if !ok {
		return fuseops.InodeAttributes{}, syscall.ENOENT
	}
	return lstatAttributes(path)
}

func (fs *fileSystem) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.SetAttr, func() error {
		inode := uint64(op.Inode)
		fd, hasFD := fs.descs.FD(inode)
		path, hasPath := fs.paths.Get(inode)
		if !hasFD && !hasPath {
			return syscall.ENOENT
		}

		if op.Size != nil {
			var err error
			if hasFD {
				err = unix.Ftruncate(fd, int64(*op.Size))
			} else {
				err = unix.Truncate(path, int64(*op.Size))
			}
			if err != nil {
				return errnoError(err)
			}
		}

		if op.Mode != nil {
			if hasFD {
				if err := unix.Fchmod(fd, uint32(op.Mode.Perm())); err != nil {
					return errnoError(err)
				}
			} else {
				// chmod refuses symlink targets with EINVAL.
				if attrs, err := lstatAttributes(path); err == nil && attrs.Mode&os.ModeSymlink != 0 {
					return syscall.EINVAL
				}
				if err := unix.Chmod(path, uint32(op.Mode.Perm())); err != nil {
					return errnoError(err)
				}
			}
		}

		if op.Uid != nil || op.Gid != nil {
			uid, gid := -1, -1
			if op.Uid != nil {
				uid = int(*op.Uid)
			}
			if op.Gid != nil {
				gid = int(*op.Gid)
			}
			var err error
			if hasFD {
				err = unix.Fchown(fd, uid, gid)
			} else {
				err = unix.Lchown(path, uid, gid)
			}
			if err != nil {
				return errnoError(err)
			}
		}

		if op.Atime != nil || op.Mtime != nil {
			if err := fs.setTimesLocked(inode, hasFD, fd, path, op.Atime, op.Mtime); err != nil {
				return errnoError(err)
			}
		}

		attrs, err := fs.attributesForLocked(inode)
		if err != nil {
			return errnoError(err)
		}
		op.Attributes = attrs
		return nil
	})
}

// setTimesLocked applies atime/mtime. If only one is given, the other is
// read from the host first so it is preserved.
func (fs *fileSystem) setTimesLocked(inode uint64, hasFD bool, fd int, path string, atime, mtime *time.Time) error {
	var current fuseops.InodeAttributes
	if atime == nil || mtime == nil {
		var err error
		current, err = fs.attributesForLocked(inode)
		if err != nil {
			return err
		}
	}

	at := current.Atime
	if atime != nil {
		at = *atime
	}
	mt := current.Mtime
	if mtime != nil {
		mt = *mtime
	}

	ts := []unix.Timespec{unix.NsecToTimespec(at.UnixNano()), unix.NsecToTimespec(mt.UnixNano())}
	if hasFD {
		return unix.UtimesNanoAt(fd, "", ts, 0)
	}
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, ts, unix.AT_SYMLINK_NOFOLLOW)
}

func (fs *fileSystem) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode := uint64(op.Inode)
	removed := fs.paths.ForgetLookups(inode, op.N)
	if removed && fs.descs.Has(inode) {
		fatalInvariant("forgetting inode %d with an open descriptor", inode)
	}
	return nil
}

func (fs *fileSystem) GetXattr(ctx context.Context, op *fuseops.GetXattrOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.GetXattr, func() error {
		path, ok := fs.paths.Get(uint64(op.Inode))
		if !ok {
			return syscall.ENOENT
		}
		value, err := xattr.LGet(path, op.Name)
		if err != nil {
			return errnoError(err)
		}
		op.BytesRead = len(value)
		if len(op.Dst) >= len(value) {
			copy(op.Dst, value)
		} else if len(op.Dst) != 0 {
			return syscall.ERANGE
		}
		return nil
	})
}

func (fs *fileSystem) SetXattr(ctx context.Context, op *fuseops.SetXattrOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.SetXattr, func() error {
		path, ok := fs.paths.Get(uint64(op.Inode))
		if !ok {
			return syscall.ENOENT
		}
		if err := xattr.LSetWithFlags(path, op.Name, op.Value, int(op.Flags)); err != nil {
			return errnoError(err)
		}
		return nil
	})
}

func (fs *fileSystem) ListXattr(ctx context.Context, op *fuseops.ListXattrOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.ListXattr, func() error {
		path, ok := fs.paths.Get(uint64(op.Inode))
		if !ok {
			return syscall.ENOENT
		}
		names, err := xattr.LList(path)
		if err != nil {
			return errnoError(err)
		}

		var buf []byte
		for _, name := range names {
			buf = append(buf, name...)
			buf = append(buf, 0)
		}
		op.BytesRead = len(buf)
		if len(op.Dst) >= len(buf) {
			copy(op.Dst, buf)
		} else if len(op.Dst) != 0 {
			return syscall.ERANGE
		}
		return nil
	})
}

func (fs *fileSystem) RemoveXattr(ctx context.Context, op *fuseops.RemoveXattrOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.RemoveXattr, func() error {
		path, ok := fs.paths.Get(uint64(op.Inode))
		if !ok {
			return syscall.ENOENT
		}
		if err := xattr.LRemove(path, op.Name); err != nil {
			return errnoError(err)
		}
		return nil
	})
}
