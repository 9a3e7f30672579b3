package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tinyrange/rproc/internal/sim"
	"github.com/tinyrange/rproc/internal/transport"
)

type bringupOptions struct {
	vdev    uint
	count   int
	message string
}

func newBringupCmd(g *globalOptions) *cobra.Command {
	opts := &bringupOptions{}
	cmd := &cobra.Command{
		Use:   "bringup",
		Short: "Set up the shared memory transport and exchange messages",
		Long: "Maps the resource table and shared buffer, creates a virtio device over " +
			"the vrings and kicks the remote. With --count 0 it serves notifications " +
			"until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBringup(cmd.Context(), g, opts)
		},
	}
	cmd.Flags().UintVar(&opts.vdev, "vdev", 0, "virtio device index")
	cmd.Flags().IntVar(&opts.count, "count", 0, "messages to send and wait for; 0 serves until interrupted")
	cmd.Flags().StringVar(&opts.message, "message", "hello", "message payload")
	return cmd
}

func runBringup(ctx context.Context, g *globalOptions, opts *bringupOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := g.openSession(sim.Echo)
	if err != nil {
		return err
	}
	tcfg := g.transportConfig()

	tr, err := transport.Setup(s.ctrl, tcfg)
	if err != nil {
		return err
	}
	defer tr.Release()

	replies := make(chan string, 16)
	vdev, err := tr.CreateVdev(opts.vdev, transport.RoleDriver, func(v *transport.Vdev, msg []byte) error {
		select {
		case replies <- string(msg):
		default:
			g.logger.Warn("reply dropped", "vdev", v.Index, "bytes", len(msg))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.ctrl.Notify(uint32(opts.vdev)); err != nil {
		return err
	}

	return tr.Run(ctx, func(ctx context.Context) error {
		if opts.count == 0 {
			<-ctx.Done()
			return nil
		}
		for i := 0; i < opts.count; i++ {
			msg := fmt.Sprintf("%s %d", opts.message, i)
			if err := vdev.Send([]byte(msg)); err != nil {
				return err
			}
			select {
			case reply := <-replies:
				fmt.Printf("%s\n", reply)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
}
