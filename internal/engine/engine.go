// Package engine implements the operations engine (component E) and fault
// filter (component F): a fuseutil.FileSystem that serves FUSE requests
// against a real host directory, maintaining its own inode->path and
// inode->descriptor tables, with every operation first passing through a
// probabilistic fault filter backed by a shared registry.Registry.
//
// Structurally this follows a ServerConfig plus a fileSystem struct guarded
// by a syncutil.InvariantMutex. Because the jacobsa/fuse server may dispatch
// concurrent operations across goroutines, this implementation serializes
// access to the path and descriptor tables under fs.mu even though a
// single-threaded event loop would not need to. Each operation holds fs.mu
// for its whole duration, including its host I/O and any injected latency
// sleep, so operations never overlap. See DESIGN.md.
package engine

import (
	"context"
	"fmt"

	"github.com/bentsi/charybdisfs/internal/descriptormap"
	"github.com/bentsi/charybdisfs/internal/logger"
	"github.com/bentsi/charybdisfs/internal/pathmap"
	"github.com/bentsi/charybdisfs/internal/registry"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// RootInode is the inode ID FUSE reserves for the mount's root directory.
const RootInode = fuseops.RootInodeID

// Config bundles the dependencies the engine needs. It is constructed once
// by cmd/mount.go and never mutated afterwards.
type Config struct {
	// Clock used for entry/attribute expiration timestamps. Injectable so
	// tests can control time.
	Clock timeutil.Clock

	// SourceRoot is the backing directory this filesystem mirrors.
	SourceRoot string

	// Registry is the shared fault rule table. The same instance is handed
	// to the control API.
	Registry *registry.Registry
}

// fileSystem is the fuseutil.FileSystem implementation. Unimplemented
// methods fall back to fuseutil.NotImplementedFileSystem's ENOSYS.
type fileSystem struct {
	fuseutil.NotImplementedFileSystem

	clock      timeutil.Clock
	sourceRoot string
	registry   *registry.Registry

	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	paths *pathmap.PathMap
	// GUARDED_BY(mu)
	descs *descriptormap.DescriptorMap
}

// invariantError marks a fatal bookkeeping violation: forgetting an inode
// with an open descriptor, replacing a descriptor for an already-mapped
// inode, an unknown path at rename/unlink. The engine never recovers from
// one; it logs and panics.
type invariantError struct {
	msg string
}

func (e *invariantError) Error() string { return e.msg }

func fatalInvariant(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.Errorf("invariant violation: %s", msg)
	panic(&invariantError{msg: msg})
}

// New constructs the engine's fuseutil.FileSystem. NewServer wraps it for
// fuse.Mount.
func New(cfg Config) fuseutil.FileSystem {
	fs := &fileSystem{
		clock:      cfg.Clock,
		sourceRoot: cfg.SourceRoot,
		registry:   cfg.Registry,
		paths:      pathmap.New(uint64(RootInode), cfg.SourceRoot),
		descs:      descriptormap.New(),
	}
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)
	return fs
}

// NewServer builds the fuse.Server CharybdisFS mounts.
func NewServer(cfg Config) fuse.Server {
	return fuseutil.NewFileSystemServer(New(cfg))
}

func (fs *fileSystem) checkInvariants() {
	// This is the hook syncutil.InvariantMutex runs on lock acquisition. It
	// performs no checks: the path and descriptor tables are not verified
	// against each other here.
	_ = fs
}

func (fs *fileSystem) Init(ctx context.Context, op *fuseops.InitOp) error {
	return nil
}

func (fs *fileSystem) Destroy() {}
