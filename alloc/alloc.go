// Package alloc tracks which blocks of the volume are in use with one bit per
// block address, stored in a single bitmap block.
//
// Inodes, directory-entry blocks and file data all come out of the same
// bitmap. The bitmap is cached in memory and every mutation is written back
// to its block before the call returns, so a reserved bit is durable before
// any other structure refers to the block.
package alloc

import (
	"fmt"
	"math/bits"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/blockfs/common"
	"github.com/mit-pdos/blockfs/disk"
	"github.com/mit-pdos/blockfs/util"
)

// Alloc uses a bit map to allocate and free block numbers. Bit n corresponds
// to block n.
type Alloc struct {
	d      disk.Disk
	blkno  common.Bnum // block holding the bitmap
	bitmap disk.Block
	max    uint64 // number of meaningful bits
}

// MkAlloc loads the bitmap stored at blkno. Only bits below max describe
// real blocks; max may not exceed the bits of one block.
func MkAlloc(d disk.Disk, blkno common.Bnum, max uint64) (*Alloc, error) {
	if max > common.NBITBLOCK {
		return nil, fmt.Errorf("alloc: %d blocks exceed bitmap capacity %d: %w",
			max, common.NBITBLOCK, unix.EINVAL)
	}
	blk, err := d.Read(blkno)
	if err != nil {
		return nil, err
	}
	a := &Alloc{
		d:      d,
		blkno:  blkno,
		bitmap: blk,
		max:    max,
	}
	return a, nil
}

func (a *Alloc) Max() uint64 {
	return a.max
}

func (a *Alloc) Test(n uint64) bool {
	if n >= a.max {
		return false
	}
	return a.bitmap[n/8]&(1<<(n%8)) != 0
}

func (a *Alloc) flush() error {
	return a.d.Write(a.blkno, a.bitmap)
}

// update flips bit n to v and writes the bitmap back. On a failed write the
// cached bit is restored so the cache keeps matching the disk.
func (a *Alloc) update(n uint64, v bool) error {
	if n >= a.max {
		return fmt.Errorf("alloc: bit %d out of range: %w", n, unix.EINVAL)
	}
	old := a.bitmap[n/8]
	if v {
		a.bitmap[n/8] |= 1 << (n % 8)
	} else {
		a.bitmap[n/8] &^= 1 << (n % 8)
	}
	if err := a.flush(); err != nil {
		a.bitmap[n/8] = old
		return err
	}
	return nil
}

// Set marks bit n used and persists the bitmap.
func (a *Alloc) Set(n uint64) error {
	return a.update(n, true)
}

// Clear marks bit n free and persists the bitmap.
func (a *Alloc) Clear(n uint64) error {
	return a.update(n, false)
}

// FindFree returns the lowest clear bit at or above start, or unix.ENOSPC.
func (a *Alloc) FindFree(start uint64) (uint64, error) {
	for n := start; n < a.max; n++ {
		if n%8 == 0 && a.bitmap[n/8] == 0xff {
			n += 7
			continue
		}
		if !a.Test(n) {
			return n, nil
		}
	}
	return 0, fmt.Errorf("alloc: no free block: %w", unix.ENOSPC)
}

// AllocNum reserves the lowest free block at or above common.FIRSTFREE.
// The bitmap is on disk when it returns.
func (a *Alloc) AllocNum() (uint64, error) {
	n, err := a.FindFree(common.FIRSTFREE)
	if err != nil {
		return 0, err
	}
	if err := a.Set(n); err != nil {
		return 0, err
	}
	util.DPrintf(5, "alloc: %d\n", n)
	return n, nil
}

// FreeNum releases block n. Releasing a free or reserved block means the
// on-disk structures are corrupt.
func (a *Alloc) FreeNum(n uint64) error {
	if n < common.FIRSTFREE || n >= a.max {
		return fmt.Errorf("alloc: free of reserved block %d: %w", n, unix.EIO)
	}
	if !a.Test(n) {
		return fmt.Errorf("alloc: double free of block %d: %w", n, unix.EIO)
	}
	util.DPrintf(5, "alloc: free %d\n", n)
	return a.Clear(n)
}

func popCnt(b byte) uint64 {
	return uint64(bits.OnesCount8(b))
}

// NumFree counts clear bits below Max.
func (a *Alloc) NumFree() uint64 {
	var used uint64
	full := a.max / 8
	for i := uint64(0); i < full; i++ {
		used += popCnt(a.bitmap[i])
	}
	for n := full * 8; n < a.max; n++ {
		if a.Test(n) {
			used++
		}
	}
	return a.max - used
}
