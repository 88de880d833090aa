package pathname

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/blockfs/common"
	"github.com/mit-pdos/blockfs/dir"
	"github.com/mit-pdos/blockfs/disk"
	"github.com/mit-pdos/blockfs/inode"
)

func TestSplit(t *testing.T) {
	assert := assert.New(t)

	p, err := Split("/")
	assert.NoError(err)
	assert.True(p.IsRoot())
	assert.Equal("", p.Leaf())
	assert.Equal("/", p.String())

	p, err = Split("//dir3//subdir/file.4k-/")
	assert.NoError(err)
	assert.Equal(Path{"dir3", "subdir", "file.4k-"}, p)
	assert.Equal(Path{"dir3", "subdir"}, p.Parent())
	assert.Equal("file.4k-", p.Leaf())

	p, err = Split("/dir3/abcdefesfsfsfgfdfdsffrghcgbfgvdfadscvnghgfssvfb")
	assert.NoError(err)
	assert.Equal("abcdefesfsfsfgfdfdsffrghcgb", p.Leaf())

	_, err = Split("/1/2/3/4/5/6/7/8/9/10")
	assert.NoError(err)
	_, err = Split("/1/2/3/4/5/6/7/8/9/10/11")
	assert.True(errors.Is(err, unix.EINVAL))
}

func TestParentDoesNotAlias(t *testing.T) {
	p, _ := Split("/a/b/c")
	parent := p.Parent()
	parent = append(parent, "x")
	assert.Equal(t, Path{"a", "b", "c"}, p)
	assert.Equal(t, Path{"a", "b", "x"}, parent)
}

func TestSameParent(t *testing.T) {
	split := func(s string) Path {
		p, err := Split(s)
		require.NoError(t, err)
		return p
	}
	assert.True(t, split("/dir3/subdir/file.12k").SameParent(split("/dir3/subdir/renamed.12k")))
	assert.True(t, split("/a").SameParent(split("/b")))
	assert.False(t, split("/dir3/subdir/file.12k").SameParent(split("/dir3/renamed.12k")))
	assert.False(t, split("/a/x").SameParent(split("/b/x")))
}

// mkTree lays out / -> {a/ -> {f}} by hand:
// root inode 2 (entries 3), a at 4 (entries 5), f at 6.
func mkTree(t *testing.T) disk.Disk {
	d := disk.NewMemDisk(16)
	now := time.Unix(0, 0)

	root := inode.MkInode(common.ROOTINUM, common.S_IFDIR|0777, 0, 0, now)
	root.Ptrs[0] = 3
	require.NoError(t, root.Write(d))
	rents := dir.MkDir(3)
	_, err := rents.Insert("a", 4)
	require.NoError(t, err)
	require.NoError(t, rents.Write(d))

	a := inode.MkInode(4, common.S_IFDIR|0777, 0, 0, now)
	a.Ptrs[0] = 5
	require.NoError(t, a.Write(d))
	aents := dir.MkDir(5)
	_, err = aents.Insert("f", 6)
	require.NoError(t, err)
	require.NoError(t, aents.Write(d))

	f := inode.MkInode(6, common.S_IFREG|0666, 0, 0, now)
	require.NoError(t, f.Write(d))
	return d
}

func TestResolve(t *testing.T) {
	d := mkTree(t)
	for _, tc := range []struct {
		path string
		inum common.Inum
		err  error
	}{
		{"/", common.ROOTINUM, nil},
		{"/a", 4, nil},
		{"/a/f", 6, nil},
		{"/a/", 4, nil},
		{"/b", 0, unix.ENOENT},
		{"/a/g", 0, unix.ENOENT},
		{"/b/f", 0, unix.ENOENT},
		{"/a/f/x", 0, unix.ENOTDIR},
	} {
		p, err := Split(tc.path)
		require.NoError(t, err)
		inum, err := Resolve(d, p)
		if tc.err != nil {
			assert.True(t, errors.Is(err, tc.err), "%s: got %v", tc.path, err)
			continue
		}
		assert.NoError(t, err, tc.path)
		assert.Equal(t, tc.inum, inum, tc.path)
	}
}

func TestResolveParent(t *testing.T) {
	d := mkTree(t)
	p, _ := Split("/a/new")
	inum, err := ResolveParent(d, p)
	assert.NoError(t, err)
	assert.Equal(t, common.Inum(4), inum)

	p, _ = Split("/missing/new")
	_, err = ResolveParent(d, p)
	assert.True(t, errors.Is(err, unix.ENOENT))
}
