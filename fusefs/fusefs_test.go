package fusefs

import (
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blockfs "github.com/mit-pdos/blockfs/fs"
	"github.com/mit-pdos/blockfs/inode"
	"github.com/mit-pdos/blockfs/testutil"
)

func TestFillAttr(t *testing.T) {
	mtime := time.Unix(1565283167, 0)
	ctime := time.Unix(1565283152, 0)
	var out fuse.Attr
	FillAttr(inode.Attr{
		Ino:     12,
		Mode:    0100644,
		Nlink:   1,
		Uid:     500,
		Gid:     501,
		Size:    4098,
		Blocks:  2,
		Blksize: 4096,
		Atime:   mtime,
		Mtime:   mtime,
		Ctime:   ctime,
	}, &out)

	assert.Equal(t, uint64(12), out.Ino)
	assert.Equal(t, uint64(4098), out.Size)
	assert.Equal(t, uint64(16), out.Blocks, "512-byte units")
	assert.Equal(t, uint32(0100644), out.Mode)
	assert.Equal(t, fuse.Owner{Uid: 500, Gid: 501}, out.Owner)
	assert.Equal(t, uint32(4096), out.Blksize)
	assert.Equal(t, uint64(1565283167), out.Mtime)
	assert.Equal(t, uint64(1565283152), out.Ctime)
}

func TestFillStatfs(t *testing.T) {
	var out fuse.StatfsOut
	FillStatfs(blockfs.Statfs{Bsize: 4096, Blocks: 398, Bfree: 356, Bavail: 356, Namemax: 27}, &out)
	assert.Equal(t, uint64(398), out.Blocks)
	assert.Equal(t, uint64(356), out.Bfree)
	assert.Equal(t, uint64(356), out.Bavail)
	assert.Equal(t, uint32(4096), out.Bsize)
	assert.Equal(t, uint32(27), out.NameLen)
}

// mountFixture serves the fixture volume in a temporary directory, skipping
// the test where FUSE is unavailable.
func mountFixture(t *testing.T) (string, *blockfs.FS) {
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("no /dev/fuse")
	}
	fsys, err := blockfs.Mount(testutil.Fixture(t))
	require.NoError(t, err)
	dir := t.TempDir()
	srv, err := Mount(dir, fsys, MountOptions{})
	if err != nil {
		t.Skipf("mount: %v", err)
	}
	t.Cleanup(func() {
		srv.Unmount()
	})
	return dir, fsys
}

func TestMountedTree(t *testing.T) {
	mnt, _ := mountFixture(t)

	for dir, want := range testutil.Listings {
		ents, err := os.ReadDir(filepath.Join(mnt, dir))
		require.NoError(t, err, dir)
		var names []string
		for _, e := range ents {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		sorted := append([]string(nil), want...)
		sort.Strings(sorted)
		assert.Equal(t, sorted, names, dir)
	}

	for _, f := range testutil.Tree {
		st, err := os.Stat(filepath.Join(mnt, f.Path))
		require.NoError(t, err, f.Path)
		assert.Equal(t, f.IsDir(), st.IsDir(), f.Path)
		if f.IsDir() {
			continue
		}
		assert.Equal(t, int64(f.Size), st.Size(), f.Path)
		data, err := os.ReadFile(filepath.Join(mnt, f.Path))
		require.NoError(t, err, f.Path)
		assert.Equal(t, testutil.Checksum(testutil.Content(f.Path, f.Size)), testutil.Checksum(data), f.Path)
	}
}

func TestMountedWrite(t *testing.T) {
	mnt, fsys := mountFixture(t)
	path := filepath.Join(mnt, "dir3", "new")
	data := testutil.Content("/dir3/new", 9000)

	require.NoError(t, os.WriteFile(path, data, 0644))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	attr, err := fsys.Getattr("/dir3/new")
	require.NoError(t, err)
	assert.Equal(t, uint64(9000), attr.Size)

	require.NoError(t, os.Rename(path, filepath.Join(mnt, "dir3", "renamed")))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	err = os.Rename(filepath.Join(mnt, "dir3", "renamed"), filepath.Join(mnt, "renamed"))
	assert.ErrorIs(t, err, syscall.EINVAL)

	require.NoError(t, os.Remove(filepath.Join(mnt, "dir3", "renamed")))
	require.NoError(t, os.Mkdir(filepath.Join(mnt, "d"), 0755))
	require.NoError(t, os.Remove(filepath.Join(mnt, "d")))

	problems, err := fsys.Check()
	assert.NoError(t, err)
	assert.Empty(t, problems)
}
