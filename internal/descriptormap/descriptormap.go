// Package descriptormap implements the bidirectional inode<->host-fd table
// the operations engine uses to avoid reopening a file it already holds
// open, and to know when the last reference against an open descriptor has
// gone so the host fd can be closed deterministically.
//
// Like pathmap, a DescriptorMap is owned exclusively by the single-threaded
// operations engine and does no internal locking.
package descriptormap

import "fmt"

type entry struct {
	fd      int
	opens   uint64
}

// DescriptorMap maps inode IDs to open host file descriptors.
type DescriptorMap struct {
	byInode map[uint64]*entry
	byFD    map[int]uint64
}

// New returns an empty DescriptorMap.
func New() *DescriptorMap {
	return &DescriptorMap{
		byInode: make(map[uint64]*entry),
		byFD:    make(map[int]uint64),
	}
}

// Insert records that inode's descriptor is fd, with an open count of 1. It
// is a hard runtime error - a bookkeeping bug, not a recoverable condition -
// to insert for an inode that already has a descriptor.
func (m *DescriptorMap) Insert(inode uint64, fd int) {
	if _, ok := m.byInode[inode]; ok {
		panic(fmt.Sprintf("descriptormap: inode %d already has an open descriptor", inode))
	}
	m.byInode[inode] = &entry{fd: fd, opens: 1}
	m.byFD[fd] = inode
}

// Acquire increments the open counter for fd. The caller must already know
// fd is valid (e.g. from AcquireByInode or a just-completed Insert).
func (m *DescriptorMap) Acquire(fd int) {
	inode, ok := m.byFD[fd]
	if !ok {
		panic(fmt.Sprintf("descriptormap: acquire of unknown fd %d", fd))
	}
	m.byInode[inode].opens++
}

// AcquireByInode increments the open counter for inode's descriptor, if one
// exists, and returns it.
func (m *DescriptorMap) AcquireByInode(inode uint64) (fd int, ok bool) {
	e, ok := m.byInode[inode]
	if !ok {
		return 0, false
	}
	e.opens++
	return e.fd, true
}

// FD returns the descriptor currently open for inode, without changing any
// counter.
func (m *DescriptorMap) FD(inode uint64) (fd int, ok bool) {
	e, ok := m.byInode[inode]
	if !ok {
		return 0, false
	}
	return e.fd, true
}

// Release decrements fd's open counter. When it reaches zero both mapping
// directions are removed and released reports true; the caller is
// responsible for actually closing the host fd in that case.
func (m *DescriptorMap) Release(fd int) (released bool) {
	inode, ok := m.byFD[fd]
	if !ok {
		panic(fmt.Sprintf("descriptormap: release of unknown fd %d", fd))
	}
	e := m.byInode[inode]
	e.opens--
	if e.opens == 0 {
		delete(m.byInode, inode)
		delete(m.byFD, fd)
		return true
	}
	return false
}

// Has reports whether inode currently has an open descriptor.
func (m *DescriptorMap) Has(inode uint64) bool {
	_, ok := m.byInode[inode]
	return ok
}
