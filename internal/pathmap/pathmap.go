// Package pathmap implements the inode -> path(s) bookkeeping the
// operations engine needs to translate FUSE's inode-addressed requests into
// host paths, and the lookup-count accounting FUSE's lookup/forget
// lifecycle requires.
//
// A PathMap is owned exclusively by the single-threaded operations engine
// (see the concurrency model in SPEC_FULL.md); it does no locking of its
// own, mirroring the external-synchronization contract of
// fs/inode/lookup_count.go in the pack.
package pathmap

import "fmt"

// entry holds either a single path or a set of paths (for hardlinks), plus
// the outstanding kernel lookup count for the inode.
type entry struct {
	one     string
	many    map[string]struct{} // nil unless the inode has >1 path
	lookups uint64
}

func (e *entry) isMany() bool { return e.many != nil }

func (e *entry) paths() []string {
	if e.isMany() {
		out := make([]string, 0, len(e.many))
		for p := range e.many {
			out = append(out, p)
		}
		return out
	}
	return []string{e.one}
}

func (e *entry) has(path string) bool {
	if e.isMany() {
		_, ok := e.many[path]
		return ok
	}
	return e.one == path
}

// PathMap maps inode IDs to the host path(s) currently known for them.
type PathMap struct {
	entries map[uint64]*entry
}

// New returns a PathMap pre-populated with rootInode -> sourceRoot, per the
// data model's requirement that the root inode always resolve.
func New(rootInode uint64, sourceRoot string) *PathMap {
	m := &PathMap{entries: make(map[uint64]*entry)}
	m.entries[rootInode] = &entry{one: sourceRoot, lookups: 1}
	return m
}

// Put records that inode resolves to path, incrementing its lookup count.
// Adding the same path twice still increments lookups but keeps a single
// string entry (de-duplicated) rather than promoting to a set.
func (m *PathMap) Put(inode uint64, path string) {
	e, ok := m.entries[inode]
	if !ok {
		m.entries[inode] = &entry{one: path, lookups: 1}
		return
	}

	e.lookups++
	if e.has(path) {
		return
	}

	if e.isMany() {
		e.many[path] = struct{}{}
		return
	}

	// Promote the singleton to a set containing both paths.
	e.many = map[string]struct{}{e.one: {}, path: {}}
	e.one = ""
}

// Get returns any path associated with inode. The result is indeterminate
// among hardlinked paths but stable within a non-mutating interval.
func (m *PathMap) Get(inode uint64) (string, bool) {
	e, ok := m.entries[inode]
	if !ok {
		return "", false
	}
	if e.isMany() {
		for p := range e.many {
			return p, true
		}
	}
	return e.one, true
}

// Join returns path(inode)/name. name is expected already decoded from the
// kernel's byte string.
func (m *PathMap) Join(inode uint64, name string) (string, bool) {
	base, ok := m.Get(inode)
	if !ok {
		return "", false
	}
	return joinPath(base, name), true
}

func joinPath(base, name string) string {
	if base == "/" {
		return "/" + name
	}
	return base + "/" + name
}

// ForgetPath removes path from inode's set, collapsing a two-element set
// back to a single string, or deleting the entry outright when the last
// path is removed. It reports an error if path is not associated with
// inode.
func (m *PathMap) ForgetPath(inode uint64, path string) error {
	e, ok := m.entries[inode]
	if !ok || !e.has(path) {
		return fmt.Errorf("pathmap: path %q not associated with inode %d", path, inode)
	}

	if !e.isMany() {
		delete(m.entries, inode)
		return nil
	}

	delete(e.many, path)
	switch len(e.many) {
	case 0:
		delete(m.entries, inode)
	case 1:
		for p := range e.many {
			e.one = p
		}
		e.many = nil
	}
	return nil
}

// ReplacePath atomically swaps old for new on inode, for rename. It reports
// an error if old is not associated with inode.
func (m *PathMap) ReplacePath(inode uint64, oldPath, newPath string) error {
	e, ok := m.entries[inode]
	if !ok || !e.has(oldPath) {
		return fmt.Errorf("pathmap: path %q not associated with inode %d", oldPath, inode)
	}

	if e.isMany() {
		delete(e.many, oldPath)
		e.many[newPath] = struct{}{}
		return nil
	}
	e.one = newPath
	return nil
}

// ForgetLookups decrements inode's lookup count by n. When the counter
// reaches zero the entry is removed entirely and removed reports true.
func (m *PathMap) ForgetLookups(inode uint64, n uint64) (removed bool) {
	e, ok := m.entries[inode]
	if !ok {
		return false
	}
	if n > e.lookups {
		panic(fmt.Sprintf("pathmap: forgetting %d lookups but inode %d only has %d", n, inode, e.lookups))
	}
	e.lookups -= n
	if e.lookups == 0 {
		delete(m.entries, inode)
		return true
	}
	return false
}

// Lookups returns the current outstanding lookup count for inode.
func (m *PathMap) Lookups(inode uint64) uint64 {
	e, ok := m.entries[inode]
	if !ok {
		return 0
	}
	return e.lookups
}

// Paths returns every path currently associated with inode.
func (m *PathMap) Paths(inode uint64) []string {
	e, ok := m.entries[inode]
	if !ok {
		return nil
	}
	return e.paths()
}

// Has reports whether inode has any recorded path.
func (m *PathMap) Has(inode uint64) bool {
	_, ok := m.entries[inode]
	return ok
}
