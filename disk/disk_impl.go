package disk

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ioError wraps a device failure so that callers can match it with
// errors.Is(err, unix.EIO).
func ioError(op string, a uint64, cause interface{}) error {
	return fmt.Errorf("disk: %s block %d: %v: %w", op, a, cause, unix.EIO)
}

func checkBlock(op string, a uint64, v Block, numBlocks uint64) error {
	if uint64(len(v)) != BlockSize {
		return ioError(op, a, fmt.Sprintf("buffer is not block-sized (%d bytes)", len(v)))
	}
	if a >= numBlocks {
		return ioError(op, a, "out of bounds")
	}
	return nil
}

var _ Disk = (*fileDisk)(nil)

type fileDisk struct {
	fd        int
	numBlocks uint64
}

// NewFileDisk opens (creating if needed) a disk image at path. A regular file
// whose length differs from numBlocks blocks is resized; numBlocks == 0 takes
// the size from the existing image.
func NewFileDisk(path string, numBlocks uint64) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if numBlocks == 0 {
		numBlocks = uint64(stat.Size) / BlockSize
		if numBlocks == 0 {
			unix.Close(fd)
			return nil, fmt.Errorf("%s: empty image and no size given: %w", path, unix.EINVAL)
		}
	}
	if (stat.Mode&unix.S_IFMT) == unix.S_IFREG && uint64(stat.Size) != numBlocks*BlockSize {
		err = unix.Ftruncate(fd, int64(numBlocks*BlockSize))
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("truncate %s: %w", path, err)
		}
	}
	return &fileDisk{fd, numBlocks}, nil
}

func (d *fileDisk) ReadTo(a uint64, buf Block) error {
	if err := checkBlock("read", a, buf, d.numBlocks); err != nil {
		return err
	}
	n, err := unix.Pread(d.fd, buf, int64(a*BlockSize))
	if err != nil {
		return ioError("read", a, err)
	}
	if uint64(n) != BlockSize {
		return ioError("read", a, fmt.Sprintf("short read of %d bytes", n))
	}
	return nil
}

func (d *fileDisk) Read(a uint64) (Block, error) {
	buf := NewBlock()
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *fileDisk) Write(a uint64, v Block) error {
	if err := checkBlock("write", a, v, d.numBlocks); err != nil {
		return err
	}
	n, err := unix.Pwrite(d.fd, v, int64(a*BlockSize))
	if err != nil {
		return ioError("write", a, err)
	}
	if uint64(n) != BlockSize {
		return ioError("write", a, fmt.Sprintf("short write of %d bytes", n))
	}
	return nil
}

func (d *fileDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

func (d *fileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; see https://golang.org/src/internal/poll/fd_fsync_darwin.go
	// for more details. The correct replacement is to issue a fcntl syscall with
	// cmd F_FULLFSYNC.
	err := unix.Fsync(d.fd)
	if err != nil {
		return ioError("sync", 0, err)
	}
	return nil
}

func (d *fileDisk) Close() error {
	return unix.Close(d.fd)
}

var _ Disk = (*memDisk)(nil)

type memDisk struct {
	l      *sync.RWMutex
	blocks [][BlockSize]byte
}

func NewMemDisk(numBlocks uint64) Disk {
	blocks := make([][BlockSize]byte, numBlocks)
	return &memDisk{l: new(sync.RWMutex), blocks: blocks}
}

func (d *memDisk) ReadTo(a uint64, buf Block) error {
	d.l.RLock()
	defer d.l.RUnlock()
	if err := checkBlock("read", a, buf, uint64(len(d.blocks))); err != nil {
		return err
	}
	copy(buf, d.blocks[a][:])
	return nil
}

func (d *memDisk) Read(a uint64) (Block, error) {
	buf := NewBlock()
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *memDisk) Write(a uint64, v Block) error {
	d.l.Lock()
	defer d.l.Unlock()
	if err := checkBlock("write", a, v, uint64(len(d.blocks))); err != nil {
		return err
	}
	copy(d.blocks[a][:], v)
	return nil
}

func (d *memDisk) Size() (uint64, error) {
	// this never changes so we assume it's safe to run lock-free
	return uint64(len(d.blocks)), nil
}

func (d *memDisk) Barrier() error { return nil }

func (d *memDisk) Close() error { return nil }
