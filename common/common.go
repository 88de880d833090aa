package common

import (
	"github.com/mit-pdos/blockfs/disk"
)

// The volume is one flat address space: inodes, directory-entry blocks and
// file data are all whole blocks drawn from the same bitmap, and an inode's
// number is the address of the block holding it.
const (
	BlockSize uint64 = disk.BlockSize
	NBITBLOCK uint64 = BlockSize * 8 // bits in the single bitmap block

	SUPERBLK  Bnum = 0
	BITMAPBLK Bnum = 1
	FIRSTFREE Bnum = 2 // lowest address the allocator hands out

	FSMAGIC uint32 = 0x37363030

	MaxNameLen = 27
	MaxPathLen = 10

	DIRENTSZ = 32
	NDIRENT  = BlockSize / DIRENTSZ

	INODEHDR = 4*3 + 8*3 // mode, uid, gid, size, ctime, mtime
	NDIRECT  = (BlockSize - INODEHDR) / 4

	MaxFileSize = NDIRECT * BlockSize
)

type Inum uint64
type Bnum = uint64

const (
	NULLINUM Inum = 0
	ROOTINUM Inum = 2
	NULLBNUM Bnum = 0
)

// File type and permission bits, as in stat(2).
const (
	S_IFMT   uint32 = 0170000
	S_IFDIR  uint32 = 0040000
	S_IFREG  uint32 = 0100000
	PermMask uint32 = 0777
)

func IsDir(mode uint32) bool {
	return mode&S_IFMT == S_IFDIR
}

func IsReg(mode uint32) bool {
	return mode&S_IFMT == S_IFREG
}
