package disk

import (
	"fmt"

	gdisk "github.com/tchajed/goose/machine/disk"
)

// GooseDisk is the subset of the goose disk model used by FromGoose. Goose
// disks are infallible and panic on out-of-bounds access.
type GooseDisk interface {
	Read(a uint64) gdisk.Block
	Write(a uint64, v gdisk.Block)
	Size() uint64
}

var _ Disk = (*gooseAdapter)(nil)

type gooseAdapter struct {
	d GooseDisk
}

// FromGoose adapts a goose disk to Disk, turning the model's panics into
// unix.EIO errors.
func FromGoose(d GooseDisk) Disk {
	return &gooseAdapter{d: d}
}

// NewGooseMemDisk returns an in-memory disk backed by goose's MemDisk.
func NewGooseMemDisk(numBlocks uint64) Disk {
	return FromGoose(gdisk.NewMemDisk(numBlocks))
}

func (g *gooseAdapter) guard(op string, a uint64, err *error) {
	if r := recover(); r != nil {
		*err = ioError(op, a, fmt.Sprint(r))
	}
}

func (g *gooseAdapter) ReadTo(a uint64, b Block) (err error) {
	if err := checkBlock("read", a, b, g.d.Size()); err != nil {
		return err
	}
	defer g.guard("read", a, &err)
	copy(b, g.d.Read(a))
	return nil
}

func (g *gooseAdapter) Read(a uint64) (Block, error) {
	buf := NewBlock()
	err := g.ReadTo(a, buf)
	return buf, err
}

func (g *gooseAdapter) Write(a uint64, v Block) (err error) {
	if err := checkBlock("write", a, v, g.d.Size()); err != nil {
		return err
	}
	defer g.guard("write", a, &err)
	// goose keeps the slice, so hand it a private copy
	blk := make(gdisk.Block, BlockSize)
	copy(blk, v)
	g.d.Write(a, blk)
	return nil
}

func (g *gooseAdapter) Size() (uint64, error) {
	return g.d.Size(), nil
}

func (g *gooseAdapter) Barrier() error { return nil }

func (g *gooseAdapter) Close() error { return nil }
