package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tinyrange/rproc/internal/config"
	"github.com/tinyrange/rproc/internal/platform"
	"github.com/tinyrange/rproc/internal/sim"
)

func newDevicesCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the devices the platform can open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var env platform.Env
			if g.sim {
				m, err := sim.New(sim.Options{Notify: config.NotifyNone, Logger: g.logger})
				if err != nil {
					return err
				}
				defer m.Close()
				env = m.Env()
			} else {
				var err error
				if env, err = platform.HostEnv(g.cfg); err != nil {
					return err
				}
			}

			infos, err := env.Devices.List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "BUS\tNAME\tROLE")
			for _, d := range infos {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Bus, d.Name, role(g.cfg, d.Bus, d.Name))
			}
			return w.Flush()
		},
	}
}

// role names what the configuration uses a device for.
func role(cfg config.Config, bus, name string) string {
	is := func(d config.Device) bool { return d.Bus == bus && d.Name == name }
	switch {
	case is(cfg.Shm) && cfg.Platform == config.PlatformLinux:
		return "shm"
	case is(cfg.Rproc) && cfg.Platform == config.PlatformAPU:
		return "rproc"
	case is(cfg.Notify.Device) && cfg.Notify.Mode != config.NotifyNone:
		return "notify/" + string(cfg.Notify.Mode)
	default:
		return "-"
	}
}

func newTemplateCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "template [path]",
		Short: "Write the current configuration, with defaults filled in",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFilename
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteTemplate(path, g.cfg); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote %s\n", path)
			return nil
		},
	}
}
