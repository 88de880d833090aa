// Package fs implements the file system operations on a mounted volume.
//
// Every operation takes a path, resolves it from the root directory, and
// writes back each structure it touches before returning. Operations are
// not safe for concurrent use; the caller serializes them.
package fs

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/blockfs/alloc"
	"github.com/mit-pdos/blockfs/common"
	"github.com/mit-pdos/blockfs/dir"
	"github.com/mit-pdos/blockfs/disk"
	"github.com/mit-pdos/blockfs/inode"
	"github.com/mit-pdos/blockfs/pathname"
	"github.com/mit-pdos/blockfs/super"
)

// Caller is the identity a new inode is owned by.
type Caller struct {
	Uid uint32
	Gid uint32
}

type FS struct {
	d     disk.Disk
	sb    *super.FsSuper
	alloc *alloc.Alloc
	now   func() time.Time
	log   *log.Entry
}

type Option func(*FS)

// WithClock sets the source of creation and modification times.
func WithClock(now func() time.Time) Option {
	return func(fs *FS) {
		fs.now = now
	}
}

// WithLogger sets the logger operations are traced to.
func WithLogger(l *log.Entry) Option {
	return func(fs *FS) {
		fs.log = l
	}
}

// Mount loads and validates the superblock and caches the bitmap.
func Mount(d disk.Disk, opts ...Option) (*FS, error) {
	devSize, err := d.Size()
	if err != nil {
		return nil, err
	}
	sb, err := super.Read(d)
	if err != nil {
		return nil, err
	}
	if err := sb.Validate(devSize); err != nil {
		return nil, err
	}
	a, err := alloc.MkAlloc(d, common.BITMAPBLK, sb.NBlocks())
	if err != nil {
		return nil, err
	}
	fs := &FS{
		d:     d,
		sb:    sb,
		alloc: a,
		now:   time.Now,
		log:   log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(fs)
	}
	fs.log = fs.log.WithField("volume", sb.VolumeID.String())
	fs.log.WithFields(log.Fields{
		"blocks": sb.NBlocks(),
		"free":   a.NumFree(),
	}).Info("mounted")
	return fs, nil
}

// Sync flushes the device. Every operation has already written its
// changes, so there is nothing else to write back.
func (fs *FS) Sync() error {
	return fs.d.Barrier()
}

func (fs *FS) Close() error {
	return fs.Sync()
}

func (fs *FS) Super() *super.FsSuper {
	return fs.sb
}

// trace logs one finished operation and passes err through.
func (fs *FS) trace(op string, path string, inum common.Inum, err error) error {
	e := fs.log.WithFields(log.Fields{"op": op, "path": path})
	if inum != common.NULLINUM {
		e = e.WithField("inum", inum)
	}
	switch {
	case err == nil:
		e.Debug("ok")
	case errors.Is(err, unix.EIO):
		e.WithError(err).Warn("device error")
	default:
		e.WithError(err).Debug("failed")
	}
	return err
}

func (fs *FS) timestamp() uint64 {
	return uint64(fs.now().Unix())
}

// lookup splits and resolves path and reads the inode it names.
func (fs *FS) lookup(path string) (pathname.Path, *inode.Inode, error) {
	p, err := pathname.Split(path)
	if err != nil {
		return nil, nil, err
	}
	inum, err := pathname.Resolve(fs.d, p)
	if err != nil {
		return p, nil, err
	}
	ip, err := inode.Read(fs.d, inum)
	if err != nil {
		return p, nil, err
	}
	return p, ip, nil
}

// parentDir reads the directory that holds the last component of p.
func (fs *FS) parentDir(p pathname.Path) (*inode.Inode, *dir.Dir, error) {
	pinum, err := pathname.ResolveParent(fs.d, p)
	if err != nil {
		return nil, nil, err
	}
	return fs.readDir(pinum)
}

// readDir reads directory inode inum and its entries block.
func (fs *FS) readDir(inum common.Inum) (*inode.Inode, *dir.Dir, error) {
	ip, err := inode.Read(fs.d, inum)
	if err != nil {
		return nil, nil, err
	}
	if !ip.IsDir() {
		return ip, nil, fmt.Errorf("inode %d: %w", inum, unix.ENOTDIR)
	}
	ents, err := dir.Read(fs.d, common.Bnum(ip.Ptrs[0]))
	if err != nil {
		return ip, nil, err
	}
	return ip, ents, nil
}
