package inode

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/blockfs/alloc"
	"github.com/mit-pdos/blockfs/common"
	"github.com/mit-pdos/blockfs/disk"
)

var now = time.Unix(1565283152, 0)

func data(sz int) []byte {
	d := make([]byte, sz)
	for i := range d {
		d[i] = byte(i*7 + i/4096)
	}
	return d
}

func mkFile(t *testing.T, nblocks uint64) (disk.Disk, *alloc.Alloc, *Inode) {
	d := disk.NewMemDisk(nblocks)
	a, err := alloc.MkAlloc(d, common.BITMAPBLK, nblocks)
	require.NoError(t, err)
	require.NoError(t, a.Set(uint64(common.SUPERBLK)))
	require.NoError(t, a.Set(uint64(common.BITMAPBLK)))
	inum, err := a.AllocNum()
	require.NoError(t, err)
	ip := MkInode(common.Inum(inum), common.S_IFREG|0644, 500, 500, now)
	require.NoError(t, ip.Write(d))
	return d, a, ip
}

func TestEncodeDecode(t *testing.T) {
	ip := MkInode(7, common.S_IFDIR|0755, 1, 2, now)
	ip.Size = 12345
	ip.Ptrs[0] = 9
	ip.Ptrs[common.NDIRECT-1] = 77
	blk := ip.Encode()
	assert.Equal(t, int(common.BlockSize), len(blk))
	assert.Equal(t, ip, Decode(7, blk))
}

func TestAttr(t *testing.T) {
	ip := MkInode(5, common.S_IFREG|0666, 500, 501, now)
	ip.Size = 4098
	ip.Mtime = 1565283167
	attr := ip.Attr()
	assert.Equal(t, uint64(5), attr.Ino)
	assert.Equal(t, uint64(2), attr.Blocks)
	assert.Equal(t, uint32(1), attr.Nlink)
	assert.Equal(t, int64(1565283152), attr.Ctime.Unix())
	assert.Equal(t, int64(1565283167), attr.Mtime.Unix())
	assert.Equal(t, attr.Mtime, attr.Atime)
}

func TestPtrBounds(t *testing.T) {
	ip := MkInode(5, common.S_IFREG, 0, 0, now)
	_, err := ip.Ptr(common.NDIRECT)
	assert.True(t, errors.Is(err, unix.ENOSPC))
	assert.True(t, errors.Is(ip.SetPtr(common.NDIRECT, 3), unix.ENOSPC))
	assert.NoError(t, ip.SetPtr(common.NDIRECT-1, 3))
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, sz := range []int{10, 1000, 4096, 4097, 8192, 12289} {
		d, a, ip := mkFile(t, 64)
		free := a.NumFree()
		buf := data(sz)

		n, err := ip.WriteAt(d, a, buf, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(sz), n)
		assert.Equal(t, uint64(sz), ip.Size)
		assert.Equal(t, free-ip.NBlocks(), a.NumFree(), "size %d", sz)

		ip2, err := Read(d, ip.Inum)
		require.NoError(t, err)
		out := make([]byte, sz)
		n, err = ip2.ReadAt(d, out, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(sz), n)
		assert.Equal(t, buf, out, "size %d", sz)
	}
}

func TestReadClamps(t *testing.T) {
	d, a, ip := mkFile(t, 16)
	buf := data(5000)
	_, err := ip.WriteAt(d, a, buf, 0)
	require.NoError(t, err)

	out := make([]byte, 100)
	n, err := ip.ReadAt(d, out, 4950)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), n)
	assert.Equal(t, buf[4950:], out[:50])

	n, err = ip.ReadAt(d, out, 5000)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestMergeWritePreservesBytes(t *testing.T) {
	d, a, ip := mkFile(t, 16)
	buf := data(8192)
	_, err := ip.WriteAt(d, a, buf, 0)
	require.NoError(t, err)
	free := a.NumFree()

	patch := []byte("hello, world")
	n, err := ip.WriteAt(d, a, patch, 4090)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(patch)), n)
	assert.Equal(t, free, a.NumFree(), "overwrite allocates nothing")
	assert.Equal(t, uint64(8192), ip.Size)

	copy(buf[4090:], patch)
	out := make([]byte, 8192)
	_, err = ip.ReadAt(d, out, 0)
	require.NoError(t, err)
	assert.Equal(t, buf, out)
}

func TestAppendInSteps(t *testing.T) {
	for _, step := range []int{17, 100, 1000, 1024, 1970, 3000} {
		d, a, ip := mkFile(t, 32)
		full := data(4 * 4096)
		_, err := ip.WriteAt(d, a, full[:8192], 0)
		require.NoError(t, err)
		for off := 8192; off < len(full); off += step {
			end := off + step
			if end > len(full) {
				end = len(full)
			}
			n, err := ip.WriteAt(d, a, full[off:end], uint64(off))
			require.NoError(t, err)
			assert.Equal(t, uint64(end-off), n)
		}
		out := make([]byte, len(full))
		n, err := ip.ReadAt(d, out, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(len(full)), n)
		assert.Equal(t, full, out, "step %d", step)
	}
}

func TestWriteErrors(t *testing.T) {
	d, a, ip := mkFile(t, 8)

	_, err := ip.WriteAt(d, a, []byte("x"), 1)
	assert.True(t, errors.Is(err, unix.EINVAL), "no holes")

	n, err := ip.WriteAt(d, a, nil, 0)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	// 8 blocks: super, bitmap, inode leave 5 free
	free := a.NumFree()
	_, err = ip.WriteAt(d, a, data(6*4096), 0)
	assert.True(t, errors.Is(err, unix.ENOSPC))
	assert.Equal(t, free, a.NumFree(), "failed write allocates nothing")
	assert.Equal(t, uint64(0), ip.Size)
}

func TestWriteMaxFileSize(t *testing.T) {
	d, a, ip := mkFile(t, 16)
	ip.Size = common.MaxFileSize // pretend; the check happens before any I/O
	_, err := ip.WriteAt(d, a, []byte("x"), common.MaxFileSize)
	assert.True(t, errors.Is(err, unix.ENOSPC))
}

func TestTruncate(t *testing.T) {
	d, a, ip := mkFile(t, 16)
	free := a.NumFree()
	_, err := ip.WriteAt(d, a, data(3*4096-1), 0)
	require.NoError(t, err)
	ptrs := ip.Ptrs
	assert.Equal(t, free-3, a.NumFree())

	assert.True(t, errors.Is(ip.Truncate(d, a, 10), unix.EINVAL))
	require.NoError(t, ip.Truncate(d, a, 0))
	assert.Equal(t, free, a.NumFree(), "truncate frees ceil(size/bs) blocks")
	assert.Equal(t, uint64(0), ip.Size)
	assert.Equal(t, [common.NDIRECT]uint32{}, ip.Ptrs)

	for i := 0; i < 3; i++ {
		blk, err := d.Read(uint64(ptrs[i]))
		require.NoError(t, err)
		assert.Equal(t, disk.NewBlock(), blk, "freed blocks are zeroed")
	}
	ip2, err := Read(d, ip.Inum)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), ip2.Size)
}
