package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/tinyrange/rproc/internal/config"
	"github.com/tinyrange/rproc/internal/platform"
	"github.com/tinyrange/rproc/internal/remoteproc"
	"github.com/tinyrange/rproc/internal/sim"
	"github.com/tinyrange/rproc/internal/transport"
)

type globalOptions struct {
	configPath string
	envFile    string
	sim        bool
	debug      bool

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "rproc",
		Short:         "Boot and talk to a remote processor core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "platform description (default $"+config.EnvVar+" or ./"+config.DefaultFilename+")")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "environment file to load before reading the configuration")
	root.PersistentFlags().BoolVar(&opts.sim, "sim", false, "run against the simulated machine")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newLoadCmd(opts),
		newBringupCmd(opts),
		newDevicesCmd(opts),
		newTemplateCmd(opts),
	)
	return root
}

func (o *globalOptions) setup() error {
	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}
	o.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(o.logger)

	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}

	path := config.Resolve(o.configPath)
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return err
	}
	o.cfg = cfg
	if path != "" {
		o.logger.Debug("loaded configuration", "path", path, "platform", cfg.Platform)
	}
	return nil
}

// session is an initialised controller and, with --sim, the machine it
// runs on.
type session struct {
	ctrl    *remoteproc.Controller
	env     platform.Env
	machine *sim.Machine
}

// firmwareFunc builds simulated firmware for the machine's memory layout.
type firmwareFunc func(transport.Config) sim.Firmware

// openSession builds the platform and initialises the controller. Remove
// is registered to run at exit. With --sim the configuration is replaced by
// the machine's, keeping the loader section, and firmware is built from it.
func (o *globalOptions) openSession(firmware firmwareFunc) (*session, error) {
	s := &session{}
	if o.sim {
		cfg := sim.MachineConfig(o.cfg.Platform, o.cfg.Notify.Mode)
		cfg.Loader = o.cfg.Loader
		var fw sim.Firmware
		if firmware != nil {
			fw = firmware(transport.ConfigFrom(cfg.Memory))
		}
		m, err := sim.New(sim.Options{
			Firmware:  fw,
			Notify:    cfg.Notify.Mode,
			AutoStart: cfg.Platform != config.PlatformAPU,
			Logger:    o.logger,
		})
		if err != nil {
			return nil, err
		}
		s.machine = m
		s.env = m.Env()
		o.cfg = cfg
	} else {
		env, err := platform.HostEnv(o.cfg)
		if err != nil {
			return nil, err
		}
		s.env = env
	}

	c, err := o.controller(s.env)
	if err != nil {
		if s.machine != nil {
			s.machine.Close()
		}
		return nil, err
	}
	s.ctrl = c
	atexit.Register(func() {
		if err := c.Remove(); err != nil {
			o.logger.Warn("remove failed", "error", err)
		}
		if s.machine != nil {
			s.machine.Close()
		}
	})
	return s, nil
}

func (o *globalOptions) controller(env platform.Env) (*remoteproc.Controller, error) {
	backend, err := platform.Build(o.cfg, env)
	if err != nil {
		return nil, err
	}
	return remoteproc.New(backend, remoteproc.WithLogger(o.logger))
}

func (o *globalOptions) transportConfig() transport.Config {
	return transport.ConfigFrom(o.cfg.Memory)
}
