// Package super reads and writes the superblock in block 0.
package super

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tchajed/marshal"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/blockfs/common"
	"github.com/mit-pdos/blockfs/disk"
)

type FsSuper struct {
	Magic    uint32
	DiskSize uint32 // in blocks, including the superblock and bitmap
	VolumeID uuid.UUID
}

func MkFsSuper(size uint64) (*FsSuper, error) {
	if size > common.NBITBLOCK {
		return nil, fmt.Errorf("super: %d blocks exceed bitmap capacity %d: %w",
			size, common.NBITBLOCK, unix.EINVAL)
	}
	return &FsSuper{
		Magic:    common.FSMAGIC,
		DiskSize: uint32(size),
		VolumeID: uuid.New(),
	}, nil
}

func (sb *FsSuper) Encode() disk.Block {
	enc := marshal.NewEnc(common.BlockSize)
	enc.PutInt32(sb.Magic)
	enc.PutInt32(sb.DiskSize)
	blk := enc.Finish()
	copy(blk[8:8+len(sb.VolumeID)], sb.VolumeID[:])
	return blk
}

func Decode(blk disk.Block) *FsSuper {
	dec := marshal.NewDec(blk)
	sb := &FsSuper{}
	sb.Magic = dec.GetInt32()
	sb.DiskSize = dec.GetInt32()
	copy(sb.VolumeID[:], blk[8:8+len(sb.VolumeID)])
	return sb
}

// Validate checks the superblock against the device it was read from.
func (sb *FsSuper) Validate(devSize uint64) error {
	if sb.Magic != common.FSMAGIC {
		return fmt.Errorf("super: bad magic %#x: %w", sb.Magic, unix.EINVAL)
	}
	size := uint64(sb.DiskSize)
	if size <= uint64(common.ROOTINUM) || size > common.NBITBLOCK {
		return fmt.Errorf("super: bad disk size %d: %w", size, unix.EINVAL)
	}
	if size > devSize {
		return fmt.Errorf("super: disk size %d larger than device (%d blocks): %w",
			size, devSize, unix.EINVAL)
	}
	return nil
}

func Read(d disk.Disk) (*FsSuper, error) {
	blk, err := d.Read(common.SUPERBLK)
	if err != nil {
		return nil, err
	}
	return Decode(blk), nil
}

func (sb *FsSuper) Write(d disk.Disk) error {
	return d.Write(common.SUPERBLK, sb.Encode())
}

// NBlocks is the number of blocks the volume spans.
func (sb *FsSuper) NBlocks() uint64 {
	return uint64(sb.DiskSize)
}

// NUsable excludes the superblock and the bitmap.
func (sb *FsSuper) NUsable() uint64 {
	return uint64(sb.DiskSize) - 2
}
