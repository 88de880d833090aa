package fs

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/blockfs/common"
	"github.com/mit-pdos/blockfs/dir"
	"github.com/mit-pdos/blockfs/inode"
	"github.com/mit-pdos/blockfs/pathname"
)

func (fs *FS) Getattr(path string) (inode.Attr, error) {
	_, ip, err := fs.lookup(path)
	if err != nil {
		return inode.Attr{}, fs.trace("getattr", path, common.NULLINUM, err)
	}
	fs.trace("getattr", path, ip.Inum, nil)
	return ip.Attr(), nil
}

// Readdir calls fill with the name and attributes of each valid entry of the
// directory at path, in slot order, until fill returns false.
func (fs *FS) Readdir(path string, fill func(name string, attr inode.Attr) bool) error {
	_, ip, err := fs.lookup(path)
	if err != nil {
		return fs.trace("readdir", path, common.NULLINUM, err)
	}
	_, ents, err := fs.readDir(ip.Inum)
	if err != nil {
		return fs.trace("readdir", path, ip.Inum, err)
	}
	for _, de := range ents.Valid() {
		child, err := inode.Read(fs.d, de.Inum)
		if err != nil {
			return fs.trace("readdir", path, ip.Inum, err)
		}
		if !fill(de.Name, child.Attr()) {
			break
		}
	}
	return fs.trace("readdir", path, ip.Inum, nil)
}

// Create makes an empty regular file. A mode without file type bits is
// taken as a regular file; any other type is rejected.
func (fs *FS) Create(c Caller, path string, mode uint32) error {
	if mode&common.S_IFMT == 0 {
		mode |= common.S_IFREG
	}
	if !common.IsReg(mode) {
		return fs.trace("create", path, common.NULLINUM,
			fmt.Errorf("create %s: mode %o: %w", path, mode, unix.EINVAL))
	}
	inum, err := fs.mknod(c, path, mode)
	return fs.trace("create", path, inum, err)
}

// Mkdir makes an empty directory with its own zeroed entries block.
func (fs *FS) Mkdir(c Caller, path string, mode uint32) error {
	mode |= common.S_IFDIR
	if !common.IsDir(mode) {
		return fs.trace("mkdir", path, common.NULLINUM,
			fmt.Errorf("mkdir %s: mode %o: %w", path, mode, unix.EINVAL))
	}
	inum, err := fs.mknod(c, path, mode)
	return fs.trace("mkdir", path, inum, err)
}

// mknod allocates an inode (and for a directory its entries block) and
// links it into the parent. All checks happen before the first allocation.
func (fs *FS) mknod(c Caller, path string, mode uint32) (common.Inum, error) {
	p, err := pathname.Split(path)
	if err != nil {
		return common.NULLINUM, err
	}
	if p.IsRoot() {
		return common.NULLINUM, fmt.Errorf("%s: %w", path, unix.EEXIST)
	}
	_, ents, err := fs.parentDir(p)
	if err != nil {
		return common.NULLINUM, err
	}
	if _, ok := ents.Find(p.Leaf()); ok {
		return common.NULLINUM, fmt.Errorf("%s: %w", path, unix.EEXIST)
	}
	if _, err := ents.FreeSlot(); err != nil {
		return common.NULLINUM, err
	}
	isDir := common.IsDir(mode)
	need := uint64(1)
	if isDir {
		need = 2
	}
	if free := fs.alloc.NumFree(); free < need {
		return common.NULLINUM, fmt.Errorf("%s: need %d blocks, %d free: %w",
			path, need, free, unix.ENOSPC)
	}

	bn, err := fs.alloc.AllocNum()
	if err != nil {
		return common.NULLINUM, err
	}
	ip := inode.MkInode(common.Inum(bn), mode, c.Uid, c.Gid, fs.now())
	if isDir {
		ebn, err := fs.alloc.AllocNum()
		if err != nil {
			return ip.Inum, err
		}
		if err := dir.MkDir(ebn).Write(fs.d); err != nil {
			return ip.Inum, err
		}
		ip.Size = common.BlockSize
		ip.Ptrs[0] = uint32(ebn)
	}
	if err := ip.Write(fs.d); err != nil {
		return ip.Inum, err
	}
	if _, err := ents.Insert(p.Leaf(), ip.Inum); err != nil {
		return ip.Inum, err
	}
	return ip.Inum, ents.Write(fs.d)
}

// Unlink removes a file, zeroing and freeing its blocks and its inode.
func (fs *FS) Unlink(path string) error {
	p, ip, err := fs.lookup(path)
	if err != nil {
		return fs.trace("unlink", path, common.NULLINUM, err)
	}
	if ip.IsDir() {
		return fs.trace("unlink", path, ip.Inum, fmt.Errorf("unlink %s: %w", path, unix.EISDIR))
	}
	return fs.trace("unlink", path, ip.Inum, fs.remove(p, ip))
}

// Rmdir removes an empty directory. The root cannot be removed.
func (fs *FS) Rmdir(path string) error {
	p, ip, err := fs.lookup(path)
	if err != nil {
		return fs.trace("rmdir", path, common.NULLINUM, err)
	}
	_, ents, err := fs.readDir(ip.Inum)
	if err != nil {
		return fs.trace("rmdir", path, ip.Inum, err)
	}
	if !ents.IsEmpty() {
		return fs.trace("rmdir", path, ip.Inum, fmt.Errorf("rmdir %s: %w", path, unix.ENOTEMPTY))
	}
	if p.IsRoot() {
		return fs.trace("rmdir", path, ip.Inum, fmt.Errorf("rmdir %s: %w", path, unix.EINVAL))
	}
	return fs.trace("rmdir", path, ip.Inum, fs.remove(p, ip))
}

// remove releases every block ip owns and the inode block itself, then
// clears the entry for p in its parent.
func (fs *FS) remove(p pathname.Path, ip *inode.Inode) error {
	_, ents, err := fs.parentDir(p)
	if err != nil {
		return err
	}
	slot, ok := ents.Find(p.Leaf())
	if !ok {
		return fmt.Errorf("%s: %w", p, unix.ENOENT)
	}
	if err := ip.Truncate(fs.d, fs.alloc, 0); err != nil {
		return err
	}
	if err := fs.alloc.FreeNum(uint64(ip.Inum)); err != nil {
		return err
	}
	ents.Remove(slot)
	return ents.Write(fs.d)
}

// Rename renames an entry within its directory. Both paths must agree in
// every component but the last.
func (fs *FS) Rename(src string, dst string) error {
	what := src + " -> " + dst
	sp, err := pathname.Split(src)
	if err != nil {
		return fs.trace("rename", what, common.NULLINUM, err)
	}
	dp, err := pathname.Split(dst)
	if err != nil {
		return fs.trace("rename", what, common.NULLINUM, err)
	}
	if !sp.SameParent(dp) {
		return fs.trace("rename", what, common.NULLINUM,
			fmt.Errorf("rename %s: different directories: %w", what, unix.EINVAL))
	}
	if sp.IsRoot() {
		return fs.trace("rename", what, common.NULLINUM,
			fmt.Errorf("rename %s: %w", what, unix.EOPNOTSUPP))
	}
	_, ents, err := fs.parentDir(sp)
	if err != nil {
		return fs.trace("rename", what, common.NULLINUM, err)
	}
	slot, ok := ents.Find(sp.Leaf())
	if !ok {
		return fs.trace("rename", what, common.NULLINUM, fmt.Errorf("rename %s: %w", what, unix.ENOENT))
	}
	inum := ents.Ents[slot].Inum
	if _, ok := ents.Find(dp.Leaf()); ok {
		return fs.trace("rename", what, inum, fmt.Errorf("rename %s: %w", what, unix.EEXIST))
	}
	ents.Rename(slot, dp.Leaf())
	return fs.trace("rename", what, inum, ents.Write(fs.d))
}

// Chmod replaces the permission bits and keeps the file type.
func (fs *FS) Chmod(path string, mode uint32) error {
	_, ip, err := fs.lookup(path)
	if err != nil {
		return fs.trace("chmod", path, common.NULLINUM, err)
	}
	ip.Mode = ip.Mode&common.S_IFMT | mode&common.PermMask
	return fs.trace("chmod", path, ip.Inum, ip.Write(fs.d))
}

// Utime sets the modification time. Access times are not stored.
func (fs *FS) Utime(path string, mtime time.Time) error {
	if mtime.Unix() < 0 {
		return fs.trace("utime", path, common.NULLINUM,
			fmt.Errorf("utime %s: %v before epoch: %w", path, mtime, unix.EINVAL))
	}
	_, ip, err := fs.lookup(path)
	if err != nil {
		return fs.trace("utime", path, common.NULLINUM, err)
	}
	ip.Mtime = uint64(mtime.Unix())
	return fs.trace("utime", path, ip.Inum, ip.Write(fs.d))
}

// Truncate supports only length 0.
func (fs *FS) Truncate(path string, length int64) error {
	_, ip, err := fs.lookup(path)
	if err != nil {
		return fs.trace("truncate", path, common.NULLINUM, err)
	}
	if ip.IsDir() {
		return fs.trace("truncate", path, ip.Inum, fmt.Errorf("truncate %s: %w", path, unix.EISDIR))
	}
	if length != 0 {
		return fs.trace("truncate", path, ip.Inum,
			fmt.Errorf("truncate %s to %d: %w", path, length, unix.EINVAL))
	}
	ip.Mtime = fs.timestamp()
	return fs.trace("truncate", path, ip.Inum, ip.Truncate(fs.d, fs.alloc, 0))
}

// Read fills buf from offset off and returns the number of bytes read,
// which is short at the end of the file.
func (fs *FS) Read(path string, buf []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fs.trace("read", path, common.NULLINUM,
			fmt.Errorf("read %s at %d: %w", path, off, unix.EINVAL))
	}
	_, ip, err := fs.lookup(path)
	if err != nil {
		return 0, fs.trace("read", path, common.NULLINUM, err)
	}
	if ip.IsDir() {
		return 0, fs.trace("read", path, ip.Inum, fmt.Errorf("read %s: %w", path, unix.EISDIR))
	}
	n, err := ip.ReadAt(fs.d, buf, uint64(off))
	return int(n), fs.trace("read", path, ip.Inum, err)
}

// Write stores buf at offset off, which may not be past the end of the
// file, and returns the number of bytes written.
func (fs *FS) Write(path string, buf []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fs.trace("write", path, common.NULLINUM,
			fmt.Errorf("write %s at %d: %w", path, off, unix.EINVAL))
	}
	_, ip, err := fs.lookup(path)
	if err != nil {
		return 0, fs.trace("write", path, common.NULLINUM, err)
	}
	if ip.IsDir() {
		return 0, fs.trace("write", path, ip.Inum, fmt.Errorf("write %s: %w", path, unix.EISDIR))
	}
	ip.Mtime = fs.timestamp()
	n, err := ip.WriteAt(fs.d, fs.alloc, buf, uint64(off))
	return int(n), fs.trace("write", path, ip.Inum, err)
}

type Statfs struct {
	Bsize   uint64
	Blocks  uint64 // excludes the superblock and bitmap
	Bfree   uint64
	Bavail  uint64
	Namemax uint64
}

// Statfs reports space usage from the cached bitmap. It never fails; path
// is only logged.
func (fs *FS) Statfs(path string) Statfs {
	free := fs.alloc.NumFree()
	fs.trace("statfs", path, common.NULLINUM, nil)
	return Statfs{
		Bsize:   common.BlockSize,
		Blocks:  fs.sb.NUsable(),
		Bfree:   free,
		Bavail:  free,
		Namemax: common.MaxNameLen,
	}
}
