// Package mkfs formats a disk with an empty volume: superblock, bitmap, and a
// root directory whose inode sits in block 2 and whose entries block is the
// next free block.
package mkfs

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/blockfs/alloc"
	"github.com/mit-pdos/blockfs/common"
	"github.com/mit-pdos/blockfs/dir"
	"github.com/mit-pdos/blockfs/disk"
	"github.com/mit-pdos/blockfs/inode"
	"github.com/mit-pdos/blockfs/super"
	"github.com/mit-pdos/blockfs/util"
)

// MinBlocks leaves room for superblock, bitmap, root inode and root entries.
const MinBlocks = 4

type Options struct {
	Blocks   uint64 // 0 means the whole device
	RootMode uint32 // permission bits of the root; 0 means 0777
	Uid      uint32
	Gid      uint32
	Now      time.Time // zero means time.Now()
}

func Format(d disk.Disk, opts Options) (*super.FsSuper, error) {
	devSize, err := d.Size()
	if err != nil {
		return nil, err
	}
	size := opts.Blocks
	if size == 0 {
		size = util.Min(devSize, common.NBITBLOCK)
	}
	if size < MinBlocks || size > devSize {
		return nil, fmt.Errorf("mkfs: %d blocks on a %d-block device: %w", size, devSize, unix.EINVAL)
	}
	sb, err := super.MkFsSuper(size)
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	perm := opts.RootMode & common.PermMask
	if perm == 0 {
		perm = common.PermMask
	}

	if err := d.Write(common.BITMAPBLK, disk.NewBlock()); err != nil {
		return nil, err
	}
	a, err := alloc.MkAlloc(d, common.BITMAPBLK, size)
	if err != nil {
		return nil, err
	}
	for _, bn := range []common.Bnum{common.SUPERBLK, common.BITMAPBLK, common.Bnum(common.ROOTINUM)} {
		if err := a.Set(bn); err != nil {
			return nil, err
		}
	}
	ents, err := a.AllocNum()
	if err != nil {
		return nil, err
	}
	if err := dir.MkDir(ents).Write(d); err != nil {
		return nil, err
	}
	root := inode.MkInode(common.ROOTINUM, common.S_IFDIR|perm, opts.Uid, opts.Gid, now)
	root.Size = common.BlockSize
	root.Ptrs[0] = uint32(ents)
	if err := root.Write(d); err != nil {
		return nil, err
	}
	if err := sb.Write(d); err != nil {
		return nil, err
	}
	if err := d.Barrier(); err != nil {
		return nil, err
	}
	util.DPrintf(0, "mkfs: %d blocks, volume %s\n", size, sb.VolumeID)
	return sb, nil
}
