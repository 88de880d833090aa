// Package dir implements the fixed-capacity directory-entry block.
//
// A directory's inode names exactly one entries block through its first
// pointer. The block holds NDIRENT 32-byte slots; a directory never grows
// past one block.
package dir

import (
	"bytes"
	"fmt"

	"github.com/tchajed/marshal"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/blockfs/common"
	"github.com/mit-pdos/blockfs/disk"
)

type Dirent struct {
	Valid bool
	Inum  common.Inum
	Name  string
}

// Dir is the decoded contents of one entries block.
type Dir struct {
	Bnum common.Bnum
	Ents [common.NDIRENT]Dirent
}

// TruncName cuts name to MaxNameLen bytes. Names are stored and looked up
// through the same rule so that a long name created once is found again.
func TruncName(name string) string {
	if len(name) > common.MaxNameLen {
		return name[:common.MaxNameLen]
	}
	return name
}

func encodeDirent(de Dirent, b []byte) {
	var word uint32
	if de.Valid {
		word = uint32(de.Inum)<<1 | 1
	}
	enc := marshal.NewEnc(common.DIRENTSZ)
	enc.PutInt32(word)
	ent := enc.Finish()
	copy(ent[4:4+common.MaxNameLen], de.Name)
	copy(b, ent)
}

func decodeDirent(b []byte) Dirent {
	dec := marshal.NewDec(b)
	word := dec.GetInt32()
	name := b[4:common.DIRENTSZ]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return Dirent{
		Valid: word&1 == 1,
		Inum:  common.Inum(word >> 1),
		Name:  TruncName(string(name)),
	}
}

// MkDir returns an empty (all slots invalid) entries block at bn.
func MkDir(bn common.Bnum) *Dir {
	return &Dir{Bnum: bn}
}

func (dir *Dir) Encode() disk.Block {
	blk := disk.NewBlock()
	for i, de := range dir.Ents {
		off := uint64(i) * common.DIRENTSZ
		encodeDirent(de, blk[off:off+common.DIRENTSZ])
	}
	return blk
}

func Decode(bn common.Bnum, blk disk.Block) *Dir {
	dir := &Dir{Bnum: bn}
	for i := range dir.Ents {
		off := uint64(i) * common.DIRENTSZ
		dir.Ents[i] = decodeDirent(blk[off : off+common.DIRENTSZ])
	}
	return dir
}

func Read(d disk.Disk, bn common.Bnum) (*Dir, error) {
	blk, err := d.Read(bn)
	if err != nil {
		return nil, err
	}
	return Decode(bn, blk), nil
}

func (dir *Dir) Write(d disk.Disk) error {
	return d.Write(dir.Bnum, dir.Encode())
}

// Find returns the slot of the valid entry called name.
func (dir *Dir) Find(name string) (int, bool) {
	name = TruncName(name)
	for i, de := range dir.Ents {
		if de.Valid && de.Name == name {
			return i, true
		}
	}
	return -1, false
}

// FreeSlot returns the first invalid slot, or ENOSPC if the block is full.
func (dir *Dir) FreeSlot() (int, error) {
	for i, de := range dir.Ents {
		if !de.Valid {
			return i, nil
		}
	}
	return -1, fmt.Errorf("dir %d: all %d entries in use: %w", dir.Bnum, common.NDIRENT, unix.ENOSPC)
}

// Insert adds name -> inum in the first free slot. It does not write the
// block back.
func (dir *Dir) Insert(name string, inum common.Inum) (int, error) {
	name = TruncName(name)
	if _, ok := dir.Find(name); ok {
		return -1, fmt.Errorf("dir %d: %q: %w", dir.Bnum, name, unix.EEXIST)
	}
	i, err := dir.FreeSlot()
	if err != nil {
		return -1, err
	}
	dir.Ents[i] = Dirent{Valid: true, Inum: inum, Name: name}
	return i, nil
}

// Remove zeroes slot i.
func (dir *Dir) Remove(i int) {
	dir.Ents[i] = Dirent{}
}

// Rename rewrites the name of slot i in place.
func (dir *Dir) Rename(i int, name string) {
	dir.Ents[i].Name = TruncName(name)
}

func (dir *Dir) IsEmpty() bool {
	for _, de := range dir.Ents {
		if de.Valid {
			return false
		}
	}
	return true
}

// Valid lists the valid entries in slot order.
func (dir *Dir) Valid() []Dirent {
	var ents []Dirent
	for _, de := range dir.Ents {
		if de.Valid {
			ents = append(ents, de)
		}
	}
	return ents
}
