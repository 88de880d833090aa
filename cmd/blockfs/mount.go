package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/mit-pdos/blockfs/config"
	"github.com/mit-pdos/blockfs/disk"
	blockfs "github.com/mit-pdos/blockfs/fs"
	"github.com/mit-pdos/blockfs/fusefs"
)

func mountAction(ctx *cli.Context) error {
	c, err := loadConfig(ctx, ctx.Args().Get(0))
	if err != nil {
		return err
	}
	if dir := ctx.Args().Get(1); dir != "" {
		c.MountPoint = dir
	}
	if ctx.IsSet("metrics-addr") {
		c.MetricsAddr = ctx.String("metrics-addr")
	}
	if ctx.IsSet("allow-other") {
		c.AllowOther = ctx.Bool("allow-other")
	}
	if c.MountPoint == "" {
		return cli.Exit("missing mount point: DIR / "+config.EnvPrefix+"_MOUNT_POINT", 2)
	}

	d, err := disk.NewFileDisk(c.Image, 0)
	if err != nil {
		return err
	}
	defer d.Close()
	if c.MetricsAddr != "" {
		d = disk.NewMetricsDisk(d)
	}
	fsys, err := blockfs.Mount(d)
	if err != nil {
		return err
	}
	defer fsys.Close()

	srv, err := fusefs.Mount(c.MountPoint, fsys, fusefs.MountOptions{
		AllowOther: c.AllowOther,
		Debug:      ctx.Bool("fuse-debug"),
	})
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"image":      c.Image,
		"mountpoint": c.MountPoint,
	}).Info("serving")

	sigctx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runctx, cancel := context.WithCancel(sigctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runctx)
	g.Go(func() error {
		srv.Wait()
		cancel()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Wait may already have returned after an external unmount
		if err := srv.Unmount(); err != nil {
			log.WithError(err).Debug("unmounting")
		}
		return nil
	})
	if c.MetricsAddr != "" {
		hs := &http.Server{Addr: c.MetricsAddr, Handler: promhttp.Handler()}
		g.Go(func() error {
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(sctx)
		})
	}
	err = g.Wait()
	log.Info("unmounted")
	return err
}
