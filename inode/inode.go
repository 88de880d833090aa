// Package inode stores one inode per block and implements block-granular file
// I/O on top of it.
//
// An inode's number is the address of the block holding it, so reading an
// inode is reading its block; there is no separate inode table.
package inode

import (
	"fmt"
	"time"

	"github.com/tchajed/marshal"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/blockfs/common"
	"github.com/mit-pdos/blockfs/disk"
	"github.com/mit-pdos/blockfs/util"
)

type Inode struct {
	Inum  common.Inum // not stored; the block the inode was read from
	Mode  uint32
	Uid   uint32
	Gid   uint32
	Size  uint64
	Ctime uint64
	Mtime uint64
	Ptrs  [common.NDIRECT]uint32
}

// MkInode returns an empty inode with both timestamps set to now.
func MkInode(inum common.Inum, mode uint32, uid uint32, gid uint32, now time.Time) *Inode {
	ts := uint64(now.Unix())
	return &Inode{
		Inum:  inum,
		Mode:  mode,
		Uid:   uid,
		Gid:   gid,
		Ctime: ts,
		Mtime: ts,
	}
}

func (ip *Inode) IsDir() bool {
	return common.IsDir(ip.Mode)
}

func (ip *Inode) IsReg() bool {
	return common.IsReg(ip.Mode)
}

// NBlocks is the number of occupied pointers, ceil(Size / BlockSize).
func (ip *Inode) NBlocks() uint64 {
	return util.RoundUp(ip.Size, common.BlockSize)
}

// Ptr returns the i-th direct pointer, failing with ENOSPC past the fixed
// pointer array.
func (ip *Inode) Ptr(i uint64) (common.Bnum, error) {
	if i >= common.NDIRECT {
		return 0, fmt.Errorf("inode %d: block index %d beyond %d direct pointers: %w",
			ip.Inum, i, common.NDIRECT, unix.ENOSPC)
	}
	return common.Bnum(ip.Ptrs[i]), nil
}

func (ip *Inode) SetPtr(i uint64, bn common.Bnum) error {
	if i >= common.NDIRECT {
		return fmt.Errorf("inode %d: block index %d beyond %d direct pointers: %w",
			ip.Inum, i, common.NDIRECT, unix.ENOSPC)
	}
	ip.Ptrs[i] = uint32(bn)
	return nil
}

func (ip *Inode) Encode() disk.Block {
	enc := marshal.NewEnc(common.BlockSize)
	enc.PutInt32(ip.Mode)
	enc.PutInt32(ip.Uid)
	enc.PutInt32(ip.Gid)
	enc.PutInt(ip.Size)
	enc.PutInt(ip.Ctime)
	enc.PutInt(ip.Mtime)
	for _, p := range ip.Ptrs {
		enc.PutInt32(p)
	}
	return enc.Finish()
}

func Decode(inum common.Inum, blk disk.Block) *Inode {
	ip := &Inode{Inum: inum}
	dec := marshal.NewDec(blk)
	ip.Mode = dec.GetInt32()
	ip.Uid = dec.GetInt32()
	ip.Gid = dec.GetInt32()
	ip.Size = dec.GetInt()
	ip.Ctime = dec.GetInt()
	ip.Mtime = dec.GetInt()
	for i := range ip.Ptrs {
		ip.Ptrs[i] = dec.GetInt32()
	}
	return ip
}

func Read(d disk.Disk, inum common.Inum) (*Inode, error) {
	blk, err := d.Read(uint64(inum))
	if err != nil {
		return nil, err
	}
	ip := Decode(inum, blk)
	util.DPrintf(10, "inode.Read %d: %v\n", inum, ip)
	return ip, nil
}

func (ip *Inode) Write(d disk.Disk) error {
	util.DPrintf(10, "inode.Write %d: mode %o size %d\n", ip.Inum, ip.Mode, ip.Size)
	return d.Write(uint64(ip.Inum), ip.Encode())
}

func (ip *Inode) String() string {
	return fmt.Sprintf("inode %d mode %o uid %d gid %d size %d nblk %d",
		ip.Inum, ip.Mode, ip.Uid, ip.Gid, ip.Size, ip.NBlocks())
}

// Attr is the stat-like view of an inode.
type Attr struct {
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	Uid     uint32
	Gid     uint32
	Size    uint64
	Blocks  uint64 // in file system blocks
	Blksize uint32
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
}

func (ip *Inode) Attr() Attr {
	mtime := time.Unix(int64(ip.Mtime), 0)
	return Attr{
		Ino:     uint64(ip.Inum),
		Mode:    ip.Mode,
		Nlink:   1,
		Uid:     ip.Uid,
		Gid:     ip.Gid,
		Size:    ip.Size,
		Blocks:  ip.NBlocks(),
		Blksize: uint32(common.BlockSize),
		Atime:   mtime,
		Mtime:   mtime,
		Ctime:   time.Unix(int64(ip.Ctime), 0),
	}
}
