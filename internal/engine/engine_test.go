package engine

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/bentsi/charybdisfs/internal/faults"
	"github.com/bentsi/charybdisfs/internal/registry"
	"github.com/bentsi/charybdisfs/internal/syscalltag"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type EngineSuite struct {
	suite.Suite
	root string
	reg  *registry.Registry
	fs   *fileSystem
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.root = s.T().TempDir()
	s.reg = registry.New()
	impl := New(Config{
		Clock:      timeutil.RealClock(),
		SourceRoot: s.root,
		Registry:   s.reg,
	})
	s.fs = impl.(*fileSystem)
}

func (s *EngineSuite) ctx() context.Context { return context.Background() }

func (s *EngineSuite) TestCreateWriteReadEchoesContent() {
	createOp := &fuseops.CreateFileOp{
		Parent: fuseops.RootInodeID,
		Name:   "hello.txt",
		Mode:   0o644,
	}
	require.NoError(s.T(), s.fs.CreateFile(s.ctx(), createOp))
	require.NotZero(s.T(), createOp.Handle)

	writeOp := &fuseops.WriteFileOp{
		Inode:  createOp.Entry.Child,
		Handle: createOp.Handle,
		Data:   []byte("hello, world"),
		Offset: 0,
	}
	require.NoError(s.T(), s.fs.WriteFile(s.ctx(), writeOp))

	readOp := &fuseops.ReadFileOp{
		Inode:  createOp.Entry.Child,
		Handle: createOp.Handle,
		Dst:    make([]byte, 64),
		Offset: 0,
	}
	require.NoError(s.T(), s.fs.ReadFile(s.ctx(), readOp))
	s.Equal("hello, world", string(readOp.Dst[:readOp.BytesRead]))

	releaseOp := &fuseops.ReleaseFileHandleOp{Handle: createOp.Handle}
	require.NoError(s.T(), s.fs.ReleaseFileHandle(s.ctx(), releaseOp))
}

func (s *EngineSuite) TestCreateLinkSharesInode() {
	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "orig.txt", Mode: 0o644}
	require.NoError(s.T(), s.fs.CreateFile(s.ctx(), createOp))
	require.NoError(s.T(), s.fs.ReleaseFileHandle(s.ctx(), &fuseops.ReleaseFileHandleOp{Handle: createOp.Handle}))

	linkOp := &fuseops.CreateLinkOp{
		Parent: fuseops.RootInodeID,
		Name:   "alias.txt",
		Target: createOp.Entry.Child,
	}
	require.NoError(s.T(), s.fs.CreateLink(s.ctx(), linkOp))
	s.Equal(createOp.Entry.Child, linkOp.Entry.Child)
	s.Equal(uint32(2), linkOp.Entry.Attributes.Nlink)
}

func (s *EngineSuite) TestRenameUpdatesPathMapping() {
	mkdirOp := &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "dir1", Mode: os.ModeDir | 0o755}
	require.NoError(s.T(), s.fs.MkDir(s.ctx(), mkdirOp))

	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "a.txt", Mode: 0o644}
	require.NoError(s.T(), s.fs.CreateFile(s.ctx(), createOp))
	require.NoError(s.T(), s.fs.ReleaseFileHandle(s.ctx(), &fuseops.ReleaseFileHandleOp{Handle: createOp.Handle}))

	renameOp := &fuseops.RenameOp{
		OldParent: fuseops.RootInodeID,
		OldName:   "a.txt",
		NewParent: mkdirOp.Entry.Child,
		NewName:   "b.txt",
	}
	require.NoError(s.T(), s.fs.Rename(s.ctx(), renameOp))

	newPath, ok := s.fs.paths.Get(uint64(createOp.Entry.Child))
	require.True(s.T(), ok)
	s.Equal(filepath.Join(s.root, "dir1", "b.txt"), newPath)

	_, err := os.Stat(filepath.Join(s.root, "a.txt"))
	s.True(os.IsNotExist(err))
}

func (s *EngineSuite) TestMkDirReadDirEnumeratesChildren() {
	mkdirOp := &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "sub", Mode: os.ModeDir | 0o755}
	require.NoError(s.T(), s.fs.MkDir(s.ctx(), mkdirOp))

	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "f1.txt", Mode: 0o644}
	require.NoError(s.T(), s.fs.CreateFile(s.ctx(), createOp))
	require.NoError(s.T(), s.fs.ReleaseFileHandle(s.ctx(), &fuseops.ReleaseFileHandleOp{Handle: createOp.Handle}))

	openOp := &fuseops.OpenDirOp{Inode: fuseops.RootInodeID}
	require.NoError(s.T(), s.fs.OpenDir(s.ctx(), openOp))

	readOp := &fuseops.ReadDirOp{Inode: fuseops.RootInodeID, Dst: make([]byte, 4096), Offset: 0}
	require.NoError(s.T(), s.fs.ReadDir(s.ctx(), readOp))
	s.NotZero(readOp.BytesRead)

	require.NoError(s.T(), s.fs.ReleaseDirHandle(s.ctx(), &fuseops.ReleaseDirHandleOp{Handle: openOp.Handle}))
}

func (s *EngineSuite) TestUnlinkRemovesHostFileAndForgetsPath() {
	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "gone.txt", Mode: 0o644}
	require.NoError(s.T(), s.fs.CreateFile(s.ctx(), createOp))
	require.NoError(s.T(), s.fs.ReleaseFileHandle(s.ctx(), &fuseops.ReleaseFileHandleOp{Handle: createOp.Handle}))

	unlinkOp := &fuseops.UnlinkOp{Parent: fuseops.RootInodeID, Name: "gone.txt"}
	require.NoError(s.T(), s.fs.Unlink(s.ctx(), unlinkOp))

	_, err := os.Stat(filepath.Join(s.root, "gone.txt"))
	s.True(os.IsNotExist(err))
	s.False(s.fs.paths.Has(uint64(createOp.Entry.Child)))
}

func (s *EngineSuite) TestErrorFaultInjectsEnospcOnWrite() {
	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "faulty.txt", Mode: 0o644}
	require.NoError(s.T(), s.fs.CreateFile(s.ctx(), createOp))

	_, err := s.reg.Add(faults.NewError(syscalltag.Write, 100, int(syscall.ENOSPC)))
	require.NoError(s.T(), err)

	writeOp := &fuseops.WriteFileOp{
		Inode:  createOp.Entry.Child,
		Handle: createOp.Handle,
		Data:   []byte("x"),
	}
	err = s.fs.WriteFile(s.ctx(), writeOp)
	s.Equal(syscall.ENOSPC, err)
}

func (s *EngineSuite) TestProbabilityBudgetRejectsOverallocation() {
	_, err := s.reg.Add(faults.NewError(syscalltag.Write, 80, 5))
	require.NoError(s.T(), err)

	_, err = s.reg.Add(faults.NewError(syscalltag.Write, 30, 5))
	s.Error(err)
}

func (s *EngineSuite) TestStatFSReportsHostCapacity() {
	op := &fuseops.StatFSOp{}
	require.NoError(s.T(), s.fs.StatFS(s.ctx(), op))
	s.NotZero(op.Blocks)
}

func (s *EngineSuite) TestFsyncDirOnRoot() {
	err := s.fs.fsyncDir(uint64(RootInode))
	s.NoError(err)
}

func TestEffectiveNameMax(t *testing.T) {
	require.EqualValues(t, 255-len("/mnt/src")-1, effectiveNameMax("/mnt/src", 255))
	require.EqualValues(t, 0, effectiveNameMax("a very long source root path indeed", 4))
}
