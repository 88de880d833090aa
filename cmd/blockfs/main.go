package main

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/mit-pdos/blockfs/config"
	"github.com/mit-pdos/blockfs/disk"
	blockfs "github.com/mit-pdos/blockfs/fs"
	"github.com/mit-pdos/blockfs/inode"
	"github.com/mit-pdos/blockfs/mkfs"
)

func main() {
	app := cli.App{
		Name:  "blockfs",
		Usage: "format, inspect and mount blockfs volume images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{config.EnvPrefix + "_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "logrus level, overriding the configuration",
			},
			&cli.Uint64Flag{
				Name:  "verbosity",
				Usage: "debug print verbosity, overriding the configuration",
			},
		},
		Commands: []*cli.Command{{
			Name:      "mkfs",
			Usage:     "format an image",
			ArgsUsage: "[IMAGE]",
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:  "blocks",
					Usage: "volume size in blocks; defaults to the image size",
				},
			},
			Action: func(ctx *cli.Context) error {
				c, err := loadConfig(ctx, ctx.Args().First())
				if err != nil {
					return err
				}
				if ctx.IsSet("blocks") {
					c.Blocks = ctx.Uint64("blocks")
				}
				d, err := disk.NewFileDisk(c.Image, c.Blocks)
				if err != nil {
					return err
				}
				defer d.Close()
				sb, err := mkfs.Format(d, mkfs.Options{
					Blocks: c.Blocks,
					Uid:    uint32(os.Getuid()),
					Gid:    uint32(os.Getgid()),
				})
				if err != nil {
					return fmt.Errorf("formatting %s: %w", c.Image, err)
				}
				fmt.Printf("%s: %d blocks, volume %s\n", c.Image, sb.NBlocks(), sb.VolumeID)
				return nil
			},
		}, {
			Name:      "mount",
			Usage:     "serve an image over FUSE until interrupted",
			ArgsUsage: "[IMAGE [DIR]]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "metrics-addr",
					Usage: "address to serve Prometheus metrics on",
				},
				&cli.BoolFlag{
					Name:  "allow-other",
					Usage: "let other users access the mount",
				},
				&cli.BoolFlag{
					Name:  "fuse-debug",
					Usage: "log every FUSE request",
				},
			},
			Action: mountAction,
		}, {
			Name:      "stat",
			Usage:     "print the attributes of a path",
			ArgsUsage: "[IMAGE] PATH",
			Action: withFS(0, func(fsys *blockfs.FS, path string, _ []string) error {
				attr, err := fsys.Getattr(path)
				if err != nil {
					return err
				}
				printAttr(path, attr)
				return nil
			}),
		}, {
			Name:      "ls",
			Aliases:   []string{"list"},
			Usage:     "list a directory",
			ArgsUsage: "[IMAGE] PATH",
			Action: withFS(0, func(fsys *blockfs.FS, path string, _ []string) error {
				return fsys.Readdir(path, func(name string, attr inode.Attr) bool {
					printAttr(name, attr)
					return true
				})
			}),
		}, {
			Name:      "cat",
			Usage:     "copy a file to stdout",
			ArgsUsage: "[IMAGE] PATH",
			Action: withFS(0, func(fsys *blockfs.FS, path string, _ []string) error {
				return copyOut(fsys, path, os.Stdout)
			}),
		}, {
			Name:      "put",
			Usage:     "copy a local file (or stdin) into the image",
			ArgsUsage: "[IMAGE] PATH [LOCALFILE]",
			Action: withFS(1, func(fsys *blockfs.FS, path string, extra []string) error {
				var src io.Reader = os.Stdin
				if len(extra) > 0 {
					f, err := os.Open(extra[0])
					if err != nil {
						return err
					}
					defer f.Close()
					src = f
				}
				return copyIn(fsys, path, src)
			}),
		}, {
			Name:      "df",
			Usage:     "report free space",
			ArgsUsage: "[IMAGE]",
			Action: func(ctx *cli.Context) error {
				fsys, closer, err := openFS(ctx, ctx.Args().First())
				if err != nil {
					return err
				}
				defer closer()
				st := fsys.Statfs("/")
				fmt.Printf("%d blocks of %d bytes, %d free, names up to %d bytes\n",
					st.Blocks, st.Bsize, st.Bfree, st.Namemax)
				return nil
			},
		}, {
			Name:      "check",
			Aliases:   []string{"fsck"},
			Usage:     "verify the consistency of an image",
			ArgsUsage: "[IMAGE]",
			Action: func(ctx *cli.Context) error {
				fsys, closer, err := openFS(ctx, ctx.Args().First())
				if err != nil {
					return err
				}
				defer closer()
				problems, err := fsys.Check()
				if err != nil {
					return err
				}
				for _, p := range problems {
					fmt.Println(p)
				}
				if len(problems) > 0 {
					return cli.Exit(fmt.Sprintf("%d problems found", len(problems)), 1)
				}
				return nil
			},
		}},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the configuration and lets the global flags and image,
// if not empty, override it.
func loadConfig(ctx *cli.Context, image string) (*config.Config, error) {
	c, err := config.Load(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("log-level") {
		c.LogLevel = ctx.String("log-level")
	}
	if ctx.IsSet("verbosity") {
		c.Verbosity = ctx.Uint64("verbosity")
	}
	if image != "" {
		c.Image = image
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := c.ConfigureLogging(); err != nil {
		return nil, err
	}
	return c, nil
}

// openFS mounts an image without serving it.
func openFS(ctx *cli.Context, image string) (*blockfs.FS, func(), error) {
	c, err := loadConfig(ctx, image)
	if err != nil {
		return nil, nil, err
	}
	d, err := disk.NewFileDisk(c.Image, 0)
	if err != nil {
		return nil, nil, err
	}
	fsys, err := blockfs.Mount(d)
	if err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("mounting %s: %w", c.Image, err)
	}
	return fsys, func() {
		if err := fsys.Close(); err != nil {
			log.WithError(err).Warn("flushing image")
		}
		d.Close()
	}, nil
}

// withFS handles commands whose arguments are IMAGE PATH followed by nargs
// optional extras. Given only PATH, the image comes from the configuration.
func withFS(nargs int, f func(fsys *blockfs.FS, path string, extra []string) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		args := ctx.Args().Slice()
		var image string
		switch {
		case len(args) == 0:
			return cli.Exit("missing PATH", 2)
		case len(args) > 2+nargs:
			return cli.Exit(fmt.Sprintf("too many arguments: %q", args), 2)
		case len(args) > 1:
			image, args = args[0], args[1:]
		}
		fsys, closer, err := openFS(ctx, image)
		if err != nil {
			return err
		}
		defer closer()
		return f(fsys, args[0], args[1:])
	}
}

func printAttr(name string, attr inode.Attr) {
	fmt.Printf("%-28s ino=%-4d mode=%07o uid=%d gid=%d size=%d blocks=%d mtime=%s\n",
		name, attr.Ino, attr.Mode, attr.Uid, attr.Gid, attr.Size, attr.Blocks,
		attr.Mtime.Format("2006-01-02 15:04:05"))
}
