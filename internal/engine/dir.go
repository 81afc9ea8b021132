package engine

import (
	"context"
	"os"
	"sort"
	"syscall"

	"github.com/bentsi/charybdisfs/internal/syscalltag"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// OpenDir hands back the inode itself as the file-handle; there is no
// separate directory-handle state to allocate.
func (fs *fileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.OpenDir, func() error {
		if !fs.paths.Has(uint64(op.Inode)) {
			return syscall.ENOENT
		}
		op.Handle = fuseops.HandleID(op.Inode)
		return nil
	})
}

// dirent pairs a host directory entry with the inode attributes needed to
// emit it, so entries can be sorted by inode id before writing.
type dirent struct {
	ino  uint64
	name string
	typ  fuseutil.DirentType
}

func (fs *fileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.runFiltered(syscalltag.Readdir, func() error {
		dirPath, ok := fs.paths.Get(uint64(op.Inode))
		if !ok {
			return syscall.ENOENT
		}

		entries, err := listDirents(dirPath)
		if err != nil {
			return errnoError(err)
		}

		// Filter to st_ino > start_id (the offset the kernel last gave us)
		// and sort ascending, so repeated ReadDir calls resume
		// deterministically - the safer option the design notes call out
		// for surviving start_id resumes.
		startID := uint64(op.Offset)
		filtered := entries[:0]
		for _, d := range entries {
			if d.ino > startID {
				filtered = append(filtered, d)
			}
		}
		sort.Slice(filtered, func(i, j int) bool { return filtered[i].ino < filtered[j].ino })

		n := 0
		for _, d := range filtered {
			written := fuseutil.WriteDirent(op.Dst[n:], fuseutil.Dirent{
				Offset: fuseops.DirOffset(d.ino),
				Inode:  fuseops.InodeID(d.ino),
				Name:   d.name,
				Type:   d.typ,
			})
			if written == 0 {
				break
			}
			n += written
			fs.paths.Put(d.ino, joinDirPath(dirPath, d.name))
		}
		op.BytesRead = n
		return nil
	})
}

// ReleaseDirHandle is a no-op: the handle is just the inode id, nothing
// was allocated to release.
func (fs *fileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	return nil
}

func listDirents(path string) ([]dirent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	infos, err := f.ReadDir(-1)
	if err != nil {
		return nil, err
	}

	out := make([]dirent, 0, len(infos)+2)
	for _, info := range infos {
		childPath := joinDirPath(path, info.Name())
		ino, err := inodeOf(childPath)
		if err != nil {
			continue
		}
		out = append(out, dirent{ino: ino, name: info.Name(), typ: direntType(info)})
	}
	return out, nil
}

func direntType(info os.DirEntry) fuseutil.DirentType {
	switch {
	case info.IsDir():
		return fuseutil.DT_Directory
	case info.Type()&os.ModeSymlink != 0:
		return fuseutil.DT_Link
	default:
		return fuseutil.DT_File
	}
}

func joinDirPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
