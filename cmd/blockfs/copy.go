package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/blockfs/common"
	blockfs "github.com/mit-pdos/blockfs/fs"
)

// copyOut writes the file at path to w one block at a time.
func copyOut(fsys *blockfs.FS, path string, w io.Writer) error {
	buf := make([]byte, common.BlockSize)
	var off int64
	for {
		n, err := fsys.Read(path, buf, off)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
		off += int64(n)
	}
}

// copyIn replaces the contents of the file at path, creating it if needed,
// with everything read from r.
func copyIn(fsys *blockfs.FS, path string, r io.Reader) error {
	c := blockfs.Caller{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}
	err := fsys.Create(c, path, 0644)
	if errors.Is(err, unix.EEXIST) {
		err = fsys.Truncate(path, 0)
	}
	if err != nil {
		return err
	}
	buf := make([]byte, common.BlockSize)
	var off int64
	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			if _, err := fsys.Write(path, buf[:n], off); err != nil {
				return fmt.Errorf("writing %s at %d: %w", path, off, err)
			}
			off += int64(n)
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
