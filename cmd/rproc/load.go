package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tinyrange/rproc/internal/config"
	"github.com/tinyrange/rproc/internal/imagestore"
	"github.com/tinyrange/rproc/internal/loader"
)

type loadOptions struct {
	mode   string
	format string
	stop   bool
}

func newLoadCmd(g *globalOptions) *cobra.Command {
	opts := &loadOptions{}
	cmd := &cobra.Command{
		Use:   "load <image>",
		Short: "Load a firmware image and start the remote core",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(g, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.mode, "mode", "", "loading discipline: block or chunked (default from config)")
	cmd.Flags().StringVar(&opts.format, "format", "", "image format: elf or raw (default from config)")
	cmd.Flags().BoolVar(&opts.stop, "stop", false, "stop and shut the core down again after starting it")
	return cmd
}

func runLoad(g *globalOptions, opts *loadOptions, path string) error {
	lc := g.cfg.Loader
	if opts.mode != "" {
		lc.Mode = config.LoadMode(opts.mode)
	}
	if opts.format != "" {
		lc.Format = config.Format(opts.format)
	}

	var planner loader.Planner
	switch lc.Format {
	case config.FormatELF:
		planner = loader.NewELFPlanner()
	case config.FormatRaw:
		planner = &loader.RawPlanner{LoadAddr: uint64(lc.LoadAddr), MemSize: uint64(lc.MemSize), Padding: lc.Padding}
	default:
		return fmt.Errorf("unknown image format %q", lc.Format)
	}

	s, err := g.openSession(nil)
	if err != nil {
		return err
	}

	l := &loader.Loader{Planner: planner, Logger: g.logger}
	if fi, err := os.Stat(path); err == nil && term.IsTerminal(int(os.Stderr.Fd())) && !g.debug {
		bar := progressbar.DefaultBytes(fi.Size(), "load "+path)
		defer bar.Close()
		l.Progress = bar
	}

	var res loader.Result
	switch lc.Mode {
	case config.LoadBlock:
		l.Store = imagestore.NewMemStore(nil)
		res, err = l.LoadBlocking(s.ctrl, path)
	case config.LoadChunked:
		store := imagestore.NewFileStore()
		if lc.ChunkSize > 0 {
			store.ChunkSize = lc.ChunkSize
		}
		l.Store = store
		res, err = l.LoadChunked(s.ctrl, path)
	default:
		return fmt.Errorf("unknown loader mode %q", lc.Mode)
	}
	if err != nil {
		if serr := s.ctrl.Shutdown(); serr != nil {
			g.logger.Warn("shutdown after failed load", "error", serr)
		}
		return err
	}
	g.logger.Info("firmware started",
		"image", path,
		"segments", res.Segments,
		"bytes", res.Copied,
		"padded", res.Padded,
		"entry", fmt.Sprintf("0x%x", res.Entry))

	if opts.stop {
		if err := s.ctrl.Stop(); err != nil {
			g.logger.Warn("stop failed", "error", err)
		}
		if err := s.ctrl.Shutdown(); err != nil {
			return err
		}
		g.logger.Info("remote core shut down")
	}
	return nil
}
