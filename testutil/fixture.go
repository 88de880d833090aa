// Package testutil builds the reference volume the file system tests run
// against.
package testutil

import (
	"hash/crc32"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/blockfs/alloc"
	"github.com/mit-pdos/blockfs/common"
	"github.com/mit-pdos/blockfs/dir"
	"github.com/mit-pdos/blockfs/disk"
	"github.com/mit-pdos/blockfs/inode"
	"github.com/mit-pdos/blockfs/mkfs"
	"github.com/mit-pdos/blockfs/pathname"
)

const (
	// NBlocks is the size of the fixture volume.
	NBlocks uint64 = 400

	Ctime uint64 = 1565283152
	Mtime uint64 = 1565283167
)

type File struct {
	Path   string
	Uid    uint32
	Gid    uint32
	Mode   uint32
	Size   uint64
	Ctime  uint64
	Mtime  uint64
	Blocks uint64
}

func (f File) IsDir() bool {
	return common.IsDir(f.Mode)
}

// Tree lists the fixture volume, parents before children.
var Tree = []File{
	{"/", 0, 0, 040777, 4096, Ctime, Mtime, 1},
	{"/file.1k", 500, 500, 0100666, 1000, Ctime, Ctime, 1},
	{"/file.10", 500, 500, 0100666, 10, Ctime, Mtime, 1},
	{"/dir-with-long-name", 0, 0, 040777, 4096, Ctime, Mtime, 1},
	{"/dir-with-long-name/file.12k+", 0, 500, 0100666, 12289, Ctime, Mtime, 4},
	{"/dir2", 500, 500, 040777, 8192, Ctime, Mtime, 2},
	{"/dir2/twenty-seven-byte-file-name", 500, 500, 0100666, 1000, Ctime, Mtime, 1},
	{"/dir2/file.4k+", 500, 500, 0100777, 4098, Ctime, Mtime, 2},
	{"/dir3", 0, 500, 040777, 4096, Ctime, Mtime, 1},
	{"/dir3/subdir", 0, 500, 040777, 4096, Ctime, Mtime, 1},
	{"/dir3/subdir/file.4k-", 500, 500, 0100666, 4095, Ctime, Mtime, 1},
	{"/dir3/subdir/file.8k-", 500, 500, 0100666, 8190, Ctime, Mtime, 2},
	{"/dir3/subdir/file.12k", 500, 500, 0100666, 12288, Ctime, Mtime, 3},
	{"/dir3/file.12k-", 0, 500, 0100777, 12287, Ctime, Mtime, 3},
	{"/file.8k+", 500, 500, 0100666, 8195, Ctime, Mtime, 3},
}

// Listings are the entry names of each fixture directory.
var Listings = map[string][]string{
	"/":                   {"file.1k", "file.10", "dir-with-long-name", "dir2", "dir3", "file.8k+"},
	"/dir-with-long-name": {"file.12k+"},
	"/dir2":               {"twenty-seven-byte-file-name", "file.4k+"},
	"/dir3":               {"subdir", "file.12k-"},
	"/dir3/subdir":        {"file.4k-", "file.8k-", "file.12k"},
}

// UsedBlocks is the number of allocated blocks on a fresh fixture:
// superblock, bitmap, and each file's inode plus its blocks.
func UsedBlocks() uint64 {
	used := uint64(2)
	for _, f := range Tree {
		used += 1 + f.Blocks
	}
	return used
}

// Content is the deterministic contents of the fixture file at path.
func Content(path string, size uint64) []byte {
	buf := make([]byte, size)
	rnd := rand.New(rand.NewSource(int64(crc32.ChecksumIEEE([]byte(path)))))
	rnd.Read(buf)
	return buf
}

func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Fixture formats an in-memory disk and lays out Tree on it.
func Fixture(t testing.TB) disk.Disk {
	t.Helper()
	d := disk.NewMemDisk(NBlocks)
	Build(t, d)
	return d
}

// Build lays out Tree on d, which must hold at least NBlocks blocks.
func Build(t testing.TB, d disk.Disk) {
	t.Helper()
	_, err := mkfs.Format(d, mkfs.Options{
		Blocks: NBlocks,
		Now:    time.Unix(int64(Ctime), 0),
	})
	require.NoError(t, err)
	a, err := alloc.MkAlloc(d, common.BITMAPBLK, NBlocks)
	require.NoError(t, err)

	inums := make(map[string]common.Inum)
	dirs := make(map[common.Inum]*dir.Dir)
	for _, f := range Tree {
		p, err := pathname.Split(f.Path)
		require.NoError(t, err)

		var ip *inode.Inode
		if p.IsRoot() {
			ip, err = inode.Read(d, common.ROOTINUM)
			require.NoError(t, err)
		} else {
			bn, err := a.AllocNum()
			require.NoError(t, err)
			ip = inode.MkInode(common.Inum(bn), f.Mode, f.Uid, f.Gid, time.Unix(int64(f.Ctime), 0))
		}

		if f.IsDir() && !p.IsRoot() {
			for i := uint64(0); i < f.Blocks; i++ {
				bn, err := a.AllocNum()
				require.NoError(t, err)
				require.NoError(t, d.Write(bn, disk.NewBlock()))
				require.NoError(t, ip.SetPtr(i, bn))
			}
			ip.Size = f.Size
		}
		if !f.IsDir() {
			_, err := ip.WriteAt(d, a, Content(f.Path, f.Size), 0)
			require.NoError(t, err)
		}
		ip.Mode = f.Mode
		ip.Uid, ip.Gid = f.Uid, f.Gid
		ip.Ctime, ip.Mtime = f.Ctime, f.Mtime
		require.NoError(t, ip.Write(d))
		inums[p.String()] = ip.Inum

		if f.IsDir() {
			dirs[ip.Inum] = dir.MkDir(common.Bnum(ip.Ptrs[0]))
		}
		if !p.IsRoot() {
			parent := dirs[inums[p.Parent().String()]]
			_, err := parent.Insert(p.Leaf(), ip.Inum)
			require.NoError(t, err)
			require.NoError(t, parent.Write(d))
		}
	}
	require.Equal(t, NBlocks-UsedBlocks(), a.NumFree())
}
