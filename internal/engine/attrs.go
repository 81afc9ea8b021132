package engine

import (
	"os"
	"syscall"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"golang.org/x/sys/unix"
)

// errnoError converts any error into one jacobsa/fuse can translate to the
// correct FUSE wire errno. Host I/O errors already carry a syscall.Errno
// via *os.PathError/*os.LinkError; anything else becomes EIO so a non-FUSE
// failure never leaks upward, per the error-handling taxonomy.
func errnoError(err error) error {
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if unwrapErrno(err, &errno) {
		return errno
	}
	return syscall.EIO
}

func unwrapErrno(err error, out *syscall.Errno) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			*out = errno
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// statToAttributes converts a raw host stat buffer into the attribute shape
// FUSE expects. attr_timeout/entry_timeout are zero elsewhere (the kernel
// must not cache), so this only fills Attributes, not any expiration time.
func statToAttributes(st *unix.Stat_t) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:   uint64(st.Size),
		Nlink:  uint32(st.Nlink),
		Mode:   modeFromStat(uint32(st.Mode)),
		Atime:  timespecToTime(st.Atim),
		Mtime:  timespecToTime(st.Mtim),
		Ctime:  timespecToTime(st.Ctim),
		Crtime: timespecToTime(st.Ctim),
		Uid:    st.Uid,
		Gid:    st.Gid,
	}
}

func timespecToTime(ts unix.Timespec) time.Time {
	return time.Unix(int64(ts.Sec), int64(ts.Nsec))
}

// modeFromStat translates a raw st_mode into an os.FileMode, preserving
// both the type bits and the permission bits.
func modeFromStat(raw uint32) os.FileMode {
	perm := os.FileMode(raw & 0o7777)

	switch raw & unix.S_IFMT {
	case unix.S_IFDIR:
		return perm | os.ModeDir
	case unix.S_IFLNK:
		return perm | os.ModeSymlink
	case unix.S_IFSOCK:
		return perm | os.ModeSocket
	case unix.S_IFIFO:
		return perm | os.ModeNamedPipe
	case unix.S_IFBLK:
		return perm | os.ModeDevice
	case unix.S_IFCHR:
		return perm | os.ModeDevice | os.ModeCharDevice
	default:
		return perm
	}
}

// lstatAttributes lstats path and converts the result, without following a
// trailing symlink.
func lstatAttributes(path string) (fuseops.InodeAttributes, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return fuseops.InodeAttributes{}, err
	}
	return statToAttributes(&st), nil
}

// fstatAttributes fstats an already-open descriptor.
func fstatAttributes(fd int) (fuseops.InodeAttributes, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return fuseops.InodeAttributes{}, err
	}
	return statToAttributes(&st), nil
}

// inodeOf reports the host inode number backing path, used to correlate
// kernel lookups with the path map's keys (which are host st_ino values).
func inodeOf(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return 0, err
	}
	return st.Ino, nil
}

// statPath lstats path once and returns both the host inode number (the
// path map's key space) and the converted attributes.
func statPath(path string) (ino uint64, attrs fuseops.InodeAttributes, err error) {
	var st unix.Stat_t
	if err = unix.Lstat(path, &st); err != nil {
		return 0, fuseops.InodeAttributes{}, err
	}
	return st.Ino, statToAttributes(&st), nil
}
