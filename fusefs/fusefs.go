// Package fusefs serves a mounted blockfs volume through go-fuse.
//
// go-fuse dispatches requests concurrently; every node funnels its request
// through one mutex on the shared volume so that operations on the file
// system run one at a time. Nodes are addressed by path, which go-fuse keeps
// current across renames.
package fusefs

import (
	"context"
	"sync"
	"syscall"

	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/mit-pdos/blockfs/common"
	blockfs "github.com/mit-pdos/blockfs/fs"
	"github.com/mit-pdos/blockfs/inode"
)

type volume struct {
	mu sync.Mutex
	fs *blockfs.FS
}

type node struct {
	gofs.Inode
	vol *volume
}

var (
	_ gofs.NodeLookuper  = (*node)(nil)
	_ gofs.NodeGetattrer = (*node)(nil)
	_ gofs.NodeSetattrer = (*node)(nil)
	_ gofs.NodeReaddirer = (*node)(nil)
	_ gofs.NodeMkdirer   = (*node)(nil)
	_ gofs.NodeCreater   = (*node)(nil)
	_ gofs.NodeUnlinker  = (*node)(nil)
	_ gofs.NodeRmdirer   = (*node)(nil)
	_ gofs.NodeRenamer   = (*node)(nil)
	_ gofs.NodeOpener    = (*node)(nil)
	_ gofs.NodeReader    = (*node)(nil)
	_ gofs.NodeWriter    = (*node)(nil)
	_ gofs.NodeFlusher   = (*node)(nil)
	_ gofs.NodeFsyncer   = (*node)(nil)
	_ gofs.NodeStatfser  = (*node)(nil)
)

// NewRoot returns the root node of a go-fuse tree backed by fsys.
func NewRoot(fsys *blockfs.FS) gofs.InodeEmbedder {
	return &node{vol: &volume{fs: fsys}}
}

func (n *node) path() string {
	return "/" + n.Path(nil)
}

func (n *node) child(name string) string {
	if p := n.Path(nil); p != "" {
		return "/" + p + "/" + name
	}
	return "/" + name
}

func caller(ctx context.Context) blockfs.Caller {
	if c, ok := fuse.FromContext(ctx); ok {
		return blockfs.Caller{Uid: c.Uid, Gid: c.Gid}
	}
	return blockfs.Caller{}
}

// FillAttr converts inode attributes to their FUSE form. FUSE counts
// blocks in 512-byte units.
func FillAttr(attr inode.Attr, out *fuse.Attr) {
	out.Ino = attr.Ino
	out.Size = attr.Size
	out.Blocks = attr.Blocks * (common.BlockSize / 512)
	out.Mode = attr.Mode
	out.Nlink = attr.Nlink
	out.Owner = fuse.Owner{Uid: attr.Uid, Gid: attr.Gid}
	out.Blksize = attr.Blksize
	out.SetTimes(&attr.Atime, &attr.Mtime, &attr.Ctime)
}

// newChild wraps the inode at path in a go-fuse node and fills out.
func (n *node) newChild(ctx context.Context, path string, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	attr, err := n.vol.fs.Getattr(path)
	if err != nil {
		return nil, blockfs.ToErrno(err)
	}
	FillAttr(attr, &out.Attr)
	stable := gofs.StableAttr{Mode: attr.Mode & common.S_IFMT, Ino: attr.Ino}
	return n.NewInode(ctx, &node{vol: n.vol}, stable), 0
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()
	return n.newChild(ctx, n.child(name), out)
}

func (n *node) Getattr(ctx context.Context, f gofs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()
	attr, err := n.vol.fs.Getattr(n.path())
	if err != nil {
		return blockfs.ToErrno(err)
	}
	FillAttr(attr, &out.Attr)
	return 0
}

// Setattr supports mode, size (truncation to zero) and modification time.
// Ownership cannot change.
func (n *node) Setattr(ctx context.Context, f gofs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()
	path := n.path()
	if _, ok := in.GetUID(); ok {
		return syscall.EPERM
	}
	if _, ok := in.GetGID(); ok {
		return syscall.EPERM
	}
	if mode, ok := in.GetMode(); ok {
		if err := n.vol.fs.Chmod(path, mode); err != nil {
			return blockfs.ToErrno(err)
		}
	}
	if size, ok := in.GetSize(); ok {
		if err := n.vol.fs.Truncate(path, int64(size)); err != nil {
			return blockfs.ToErrno(err)
		}
	}
	if mtime, ok := in.GetMTime(); ok {
		if err := n.vol.fs.Utime(path, mtime); err != nil {
			return blockfs.ToErrno(err)
		}
	}
	attr, err := n.vol.fs.Getattr(path)
	if err != nil {
		return blockfs.ToErrno(err)
	}
	FillAttr(attr, &out.Attr)
	return 0
}

func (n *node) Readdir(ctx context.Context) (gofs.DirStream, syscall.Errno) {
	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()
	var entries []fuse.DirEntry
	err := n.vol.fs.Readdir(n.path(), func(name string, attr inode.Attr) bool {
		entries = append(entries, fuse.DirEntry{
			Name: name,
			Mode: attr.Mode,
			Ino:  attr.Ino,
		})
		return true
	})
	if err != nil {
		return nil, blockfs.ToErrno(err)
	}
	return gofs.NewListDirStream(entries), 0
}

func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()
	path := n.child(name)
	if err := n.vol.fs.Mkdir(caller(ctx), path, mode); err != nil {
		return nil, blockfs.ToErrno(err)
	}
	return n.newChild(ctx, path, out)
}

// Create makes a regular file. Without O_EXCL an existing file is opened
// instead, and truncated if O_TRUNC is set.
func (n *node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofs.Inode, gofs.FileHandle, uint32, syscall.Errno) {
	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()
	path := n.child(name)
	err := n.vol.fs.Create(caller(ctx), path, mode&common.PermMask)
	if blockfs.ToErrno(err) == syscall.EEXIST && flags&syscall.O_EXCL == 0 {
		var attr inode.Attr
		attr, err = n.vol.fs.Getattr(path)
		if err == nil && common.IsDir(attr.Mode) {
			return nil, nil, 0, syscall.EISDIR
		}
		if err == nil && flags&syscall.O_TRUNC != 0 {
			err = n.vol.fs.Truncate(path, 0)
		}
	}
	if err != nil {
		return nil, nil, 0, blockfs.ToErrno(err)
	}
	ch, errno := n.newChild(ctx, path, out)
	return ch, nil, 0, errno
}

func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()
	return blockfs.ToErrno(n.vol.fs.Unlink(n.child(name)))
}

func (n *node) Rmdir(ctx context.Context, name string) syscall.Errno {
	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()
	return blockfs.ToErrno(n.vol.fs.Rmdir(n.child(name)))
}

// Rename only moves entries within one directory.
func (n *node) Rename(ctx context.Context, name string, newParent gofs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	if flags != 0 {
		return syscall.EINVAL
	}
	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()
	dst := "/" + newName
	if p := newParent.EmbeddedInode().Path(nil); p != "" {
		dst = "/" + p + "/" + newName
	}
	return blockfs.ToErrno(n.vol.fs.Rename(n.child(name), dst))
}

func (n *node) Open(ctx context.Context, flags uint32) (gofs.FileHandle, uint32, syscall.Errno) {
	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()
	if flags&syscall.O_TRUNC != 0 {
		if err := n.vol.fs.Truncate(n.path(), 0); err != nil {
			return nil, 0, blockfs.ToErrno(err)
		}
	}
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (n *node) Read(ctx context.Context, f gofs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()
	cnt, err := n.vol.fs.Read(n.path(), dest, off)
	if err != nil {
		return nil, blockfs.ToErrno(err)
	}
	return fuse.ReadResultData(dest[:cnt]), 0
}

func (n *node) Write(ctx context.Context, f gofs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()
	cnt, err := n.vol.fs.Write(n.path(), data, off)
	return uint32(cnt), blockfs.ToErrno(err)
}

// Every write is already on the device.
func (n *node) Flush(ctx context.Context, f gofs.FileHandle) syscall.Errno {
	return 0
}

func (n *node) Fsync(ctx context.Context, f gofs.FileHandle, flags uint32) syscall.Errno {
	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()
	return blockfs.ToErrno(n.vol.fs.Sync())
}

func (n *node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	n.vol.mu.Lock()
	defer n.vol.mu.Unlock()
	FillStatfs(n.vol.fs.Statfs(n.path()), out)
	return 0
}

func FillStatfs(st blockfs.Statfs, out *fuse.StatfsOut) {
	out.Blocks = st.Blocks
	out.Bfree = st.Bfree
	out.Bavail = st.Bavail
	out.Bsize = uint32(st.Bsize)
	out.Frsize = uint32(st.Bsize)
	out.NameLen = uint32(st.Namemax)
}

type MountOptions struct {
	AllowOther bool
	Debug      bool
}

// Mount serves fsys at dir. The caller waits on the returned server and
// unmounts it.
func Mount(dir string, fsys *blockfs.FS, opts MountOptions) (*fuse.Server, error) {
	return gofs.Mount(dir, NewRoot(fsys), &gofs.Options{
		MountOptions: fuse.MountOptions{
			FsName:     "blockfs",
			Name:       "blockfs",
			AllowOther: opts.AllowOther,
			Debug:      opts.Debug,
		},
		NullPermissions: true,
	})
}
