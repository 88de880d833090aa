package disk

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func pattern(seed byte) Block {
	b := NewBlock()
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

func checkDisk(t *testing.T, d Disk, size uint64) {
	assert := assert.New(t)

	sz, err := d.Size()
	assert.NoError(err)
	assert.Equal(size, sz)

	blk, err := d.Read(3)
	assert.NoError(err)
	assert.Equal(NewBlock(), blk, "fresh disk reads zeroes")

	assert.NoError(d.Write(3, pattern(7)))
	assert.NoError(d.Write(4, pattern(9)))
	blk, err = d.Read(3)
	assert.NoError(err)
	assert.Equal(pattern(7), blk)

	buf := NewBlock()
	assert.NoError(d.ReadTo(4, buf))
	assert.Equal(pattern(9), buf)

	err = d.Write(size, pattern(1))
	assert.True(errors.Is(err, unix.EIO), "out-of-bounds write fails with EIO")
	_, err = d.Read(size)
	assert.True(errors.Is(err, unix.EIO), "out-of-bounds read fails with EIO")
	err = d.Write(0, make(Block, 10))
	assert.True(errors.Is(err, unix.EIO), "short buffer fails with EIO")

	assert.NoError(d.Barrier())
}

func TestMemDisk(t *testing.T) {
	checkDisk(t, NewMemDisk(16), 16)
}

func TestMemDiskCopiesWrites(t *testing.T) {
	d := NewMemDisk(4)
	b := pattern(1)
	require.NoError(t, d.Write(1, b))
	b[0] = 0xff
	got, err := d.Read(1)
	require.NoError(t, err)
	assert.Equal(t, pattern(1), got)
}

func TestGooseMemDisk(t *testing.T) {
	checkDisk(t, NewGooseMemDisk(16), 16)
}

func TestFileDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := NewFileDisk(path, 16)
	require.NoError(t, err)
	checkDisk(t, d, 16)
	require.NoError(t, d.Close())

	// reopening takes the size from the image and keeps contents
	d, err = NewFileDisk(path, 0)
	require.NoError(t, err)
	defer d.Close()
	sz, err := d.Size()
	require.NoError(t, err)
	assert.Equal(t, uint64(16), sz)
	blk, err := d.Read(4)
	require.NoError(t, err)
	assert.Equal(t, pattern(9), blk)
}

func TestFileDiskEmptyImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.img")
	_, err := NewFileDisk(path, 0)
	assert.True(t, errors.Is(err, unix.EINVAL))
}

func TestMetricsDisk(t *testing.T) {
	d := NewMetricsDisk(NewMemDisk(8))
	reads := diskOperations.WithLabelValues("read", "success")
	failures := diskOperations.WithLabelValues("write", "failure")
	r0 := testutil.ToFloat64(reads)
	f0 := testutil.ToFloat64(failures)

	_, err := d.Read(1)
	require.NoError(t, err)
	assert.Error(t, d.Write(100, NewBlock()))

	assert.Equal(t, r0+1, testutil.ToFloat64(reads))
	assert.Equal(t, f0+1, testutil.ToFloat64(failures))
}
