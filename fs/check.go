package fs

import (
	"fmt"

	"github.com/mit-pdos/blockfs/common"
	"github.com/mit-pdos/blockfs/dir"
	"github.com/mit-pdos/blockfs/inode"
	"github.com/mit-pdos/blockfs/pathname"
)

// checker accumulates the findings of one Check pass.
type checker struct {
	fs       *FS
	owner    map[common.Bnum]string
	problems []string
}

func (c *checker) report(format string, a ...interface{}) {
	c.problems = append(c.problems, fmt.Sprintf(format, a...))
}

// claim records that what refers to block bn.
func (c *checker) claim(bn common.Bnum, what string) bool {
	if bn < common.FIRSTFREE || bn >= c.fs.sb.NBlocks() {
		c.report("%s: block %d out of range", what, bn)
		return false
	}
	if prev, ok := c.owner[bn]; ok {
		c.report("%s: block %d already used by %s", what, bn, prev)
		return false
	}
	c.owner[bn] = what
	if !c.fs.alloc.Test(bn) {
		c.report("%s: block %d in use but free in bitmap", what, bn)
	}
	return true
}

func (c *checker) walk(p pathname.Path, inum common.Inum) error {
	if !c.claim(uint64(inum), "inode "+p.String()) {
		return nil
	}
	ip, err := inode.Read(c.fs.d, inum)
	if err != nil {
		return err
	}
	if ip.Size > common.MaxFileSize {
		c.report("%s: size %d beyond max %d", p, ip.Size, common.MaxFileSize)
		return nil
	}
	nblk := ip.NBlocks()
	for i, ptr := range ip.Ptrs {
		if uint64(i) >= nblk {
			if ptr != 0 {
				c.report("%s: pointer %d set past size %d", p, i, ip.Size)
			}
			continue
		}
		c.claim(common.Bnum(ptr), fmt.Sprintf("block %d of %s", i, p))
	}
	switch {
	case ip.IsDir():
		if nblk == 0 {
			c.report("%s: directory without entries block", p)
			return nil
		}
		ents, err := dir.Read(c.fs.d, common.Bnum(ip.Ptrs[0]))
		if err != nil {
			return err
		}
		seen := make(map[string]bool)
		for _, de := range ents.Valid() {
			if seen[de.Name] {
				c.report("%s: duplicate entry %q", p, de.Name)
				continue
			}
			seen[de.Name] = true
			child := append(p[:len(p):len(p)], de.Name)
			if len(child) > common.MaxPathLen {
				c.report("%s: deeper than %d components", child, common.MaxPathLen)
				continue
			}
			if err := c.walk(child, de.Inum); err != nil {
				return err
			}
		}
	case !ip.IsReg():
		c.report("%s: unknown file type %o", p, ip.Mode&common.S_IFMT)
	}
	return nil
}

// Check walks the tree from the root and verifies that the bitmap matches
// the blocks the tree refers to: every referenced block is allocated and
// referenced once, and every allocated block is referenced. It returns
// the problems found; an error means the walk itself could not finish.
func (fs *FS) Check() ([]string, error) {
	c := &checker{fs: fs, owner: make(map[common.Bnum]string)}
	for _, bn := range []common.Bnum{common.SUPERBLK, common.BITMAPBLK} {
		if !fs.alloc.Test(bn) {
			c.report("reserved block %d free in bitmap", bn)
		}
	}
	if err := c.walk(nil, common.ROOTINUM); err != nil {
		return c.problems, err
	}
	for bn := common.FIRSTFREE; bn < fs.sb.NBlocks(); bn++ {
		if _, ok := c.owner[bn]; !ok && fs.alloc.Test(bn) {
			c.report("block %d allocated but unreferenced", bn)
		}
	}
	fs.log.WithField("problems", len(c.problems)).Info("check done")
	return c.problems, nil
}
