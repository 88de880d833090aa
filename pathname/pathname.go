// Package pathname splits slash-separated paths and walks them from the root
// directory to an inode number.
package pathname

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/blockfs/common"
	"github.com/mit-pdos/blockfs/dir"
	"github.com/mit-pdos/blockfs/disk"
	"github.com/mit-pdos/blockfs/inode"
	"github.com/mit-pdos/blockfs/util"
)

// Path is an ordered list of components, each already cut to MaxNameLen.
// The empty Path names the root. Methods never modify the receiver.
type Path []string

// Split breaks p on '/', dropping empty components. Paths with more than
// MaxPathLen components are rejected with EINVAL.
func Split(p string) (Path, error) {
	var comps Path
	for _, c := range strings.Split(p, "/") {
		if c == "" {
			continue
		}
		if len(comps) == common.MaxPathLen {
			return nil, fmt.Errorf("path %q: more than %d components: %w",
				p, common.MaxPathLen, unix.EINVAL)
		}
		comps = append(comps, dir.TruncName(c))
	}
	return comps, nil
}

func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Parent drops the last component; the root is its own parent.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1:len(p)-1]
}

// Leaf is the last component, or "" for the root.
func (p Path) Leaf() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// SameParent reports whether p and q differ at most in their last component.
func (p Path) SameParent(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := 0; i+1 < len(p); i++ {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

func (p Path) String() string {
	return "/" + strings.Join(p, "/")
}

// Resolve walks p from the root inode. It fails with ENOTDIR when a
// component other than the last is reached through a non-directory, and
// with ENOENT when a component is missing.
func Resolve(d disk.Disk, p Path) (common.Inum, error) {
	inum := common.ROOTINUM
	for _, name := range p {
		ip, err := inode.Read(d, inum)
		if err != nil {
			return common.NULLINUM, err
		}
		if !ip.IsDir() {
			return common.NULLINUM, fmt.Errorf("%s: %d is not a directory: %w", p, inum, unix.ENOTDIR)
		}
		ents, err := dir.Read(d, common.Bnum(ip.Ptrs[0]))
		if err != nil {
			return common.NULLINUM, err
		}
		i, ok := ents.Find(name)
		if !ok {
			return common.NULLINUM, fmt.Errorf("%s: %q: %w", p, name, unix.ENOENT)
		}
		inum = ents.Ents[i].Inum
		util.DPrintf(15, "resolve %s: %s -> %d\n", p, name, inum)
	}
	return inum, nil
}

// ResolveParent resolves all but the last component of p.
func ResolveParent(d disk.Disk, p Path) (common.Inum, error) {
	return Resolve(d, p.Parent())
}
