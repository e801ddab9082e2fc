// Command logward tails files and forwards each line through the
// configured logging transports.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/logward/logward"
	"github.com/logward/logward/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "logward",
		Short:         "Structured logging facade and log shipper",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	root.AddCommand(newShipCmd(&configPath))
	return root
}

func newShipCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ship <file>...",
		Short: "Tail files and forward every new line to the configured transports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := cfg.Build()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			for _, path := range args {
				g.Go(func() error {
					return follow(ctx, logger, path)
				})
			}
			err = g.Wait()

			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if cerr := logger.Close(closeCtx); cerr != nil {
				fmt.Fprintf(os.Stderr, "shutdown: %v\n", cerr)
			}
			return err
		},
	}
}

// follow tails one file until the context is cancelled, shipping each
// new line at info level tagged with its origin.
func follow(ctx context.Context, logger *logward.Logger, path string) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		return err
	}
	defer t.Cleanup()

	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line == nil || line.Err != nil {
				continue
			}
			logger.Info(line.Text, logward.Fields{"file": path})
		case <-ctx.Done():
			t.Stop()
			return nil
		}
	}
}
