package inode

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/blockfs/alloc"
	"github.com/mit-pdos/blockfs/common"
	"github.com/mit-pdos/blockfs/disk"
	"github.com/mit-pdos/blockfs/util"
)

// ReadAt copies the bytes of [off, off+len(data)) clamped to the file size
// into data and returns how many were copied. Reading at or past the end
// returns 0.
func (ip *Inode) ReadAt(d disk.Disk, data []byte, off uint64) (uint64, error) {
	if off >= ip.Size {
		return 0, nil
	}
	end := util.Min(off+uint64(len(data)), ip.Size)
	blk := disk.NewBlock()
	var n uint64
	for pos := off; pos < end; {
		bn, err := ip.Ptr(pos / common.BlockSize)
		if err != nil {
			return n, err
		}
		if err := d.ReadTo(bn, blk); err != nil {
			return n, err
		}
		boff := pos % common.BlockSize
		cnt := util.Min(common.BlockSize-boff, end-pos)
		copy(data[n:n+cnt], blk[boff:boff+cnt])
		n += cnt
		pos += cnt
	}
	return n, nil
}

// blocksNeeded is how many new blocks a write ending at end must allocate.
func (ip *Inode) blocksNeeded(end uint64) uint64 {
	want := util.RoundUp(end, common.BlockSize)
	have := ip.NBlocks()
	if want <= have {
		return 0
	}
	return want - have
}

// WriteAt writes data at off and persists the inode. Writes may not start
// past the current size, and may not grow the file past MaxFileSize or past
// the free space of the volume; such writes fail before anything changes.
func (ip *Inode) WriteAt(d disk.Disk, a *alloc.Alloc, data []byte, off uint64) (uint64, error) {
	if off > ip.Size {
		return 0, fmt.Errorf("inode %d: write at %d past size %d: %w",
			ip.Inum, off, ip.Size, unix.EINVAL)
	}
	cnt := uint64(len(data))
	if cnt == 0 {
		return 0, nil
	}
	end := off + cnt
	if util.SumOverflows(off, cnt) || end > common.MaxFileSize {
		return 0, fmt.Errorf("inode %d: write to %d exceeds max file size %d: %w",
			ip.Inum, end, common.MaxFileSize, unix.ENOSPC)
	}
	if need := ip.blocksNeeded(end); need > a.NumFree() {
		return 0, fmt.Errorf("inode %d: need %d blocks, %d free: %w",
			ip.Inum, need, a.NumFree(), unix.ENOSPC)
	}

	nblk := ip.NBlocks()
	var n uint64
	for n < cnt {
		pos := off + n
		bi := pos / common.BlockSize
		boff := pos % common.BlockSize
		m := util.Min(common.BlockSize-boff, cnt-n)

		var bn common.Bnum
		fresh := bi >= nblk
		if fresh {
			var err error
			bn, err = a.AllocNum()
			if err != nil {
				return n, err
			}
			if err := ip.SetPtr(bi, bn); err != nil {
				return n, err
			}
			nblk = bi + 1
		} else {
			bn, _ = ip.Ptr(bi)
		}

		if err := mergeWrite(d, bn, fresh, boff, data[n:n+m]); err != nil {
			return n, err
		}
		n += m
		// keep size covering every block the pointer array now names
		if pos+m > ip.Size {
			ip.Size = pos + m
		}
	}
	if err := ip.Write(d); err != nil {
		return n, err
	}
	return n, nil
}

// mergeWrite stores src at offset boff of block bn. A write that doesn't
// cover the whole block first reads the block so the bytes outside the range
// survive; a freshly allocated block starts out as zeroes instead.
func mergeWrite(d disk.Disk, bn common.Bnum, fresh bool, boff uint64, src []byte) error {
	blk := disk.NewBlock()
	partial := boff != 0 || uint64(len(src)) < common.BlockSize
	if partial && !fresh {
		if err := d.ReadTo(bn, blk); err != nil {
			return err
		}
	}
	copy(blk[boff:], src)
	return d.Write(bn, blk)
}

// Truncate shrinks the file to zero bytes: every occupied block is
// overwritten with zeroes and released, and the inode is persisted. Other
// lengths are not supported.
func (ip *Inode) Truncate(d disk.Disk, a *alloc.Alloc, length uint64) error {
	if length != 0 {
		return fmt.Errorf("inode %d: truncate to %d: %w", ip.Inum, length, unix.EINVAL)
	}
	zero := disk.NewBlock()
	nblk := ip.NBlocks()
	for i := uint64(0); i < nblk; i++ {
		bn, err := ip.Ptr(i)
		if err != nil {
			return err
		}
		if err := d.Write(bn, zero); err != nil {
			return err
		}
		if err := a.FreeNum(bn); err != nil {
			return err
		}
		ip.Ptrs[i] = 0
	}
	ip.Size = 0
	return ip.Write(d)
}
