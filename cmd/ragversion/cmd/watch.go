package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sourangshupal/ragversion/internal/eventbus"
	"github.com/sourangshupal/ragversion/internal/tracker"
)

func newWatchCmd() *cobra.Command {
	var ignore []string

	cmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: "Watch a directory and track changes as they happen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, _, err := openTracker(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = t.Close() }()

			// Echo committed changes to the terminal as they land.
			t.Bus().Subscribe(eventbus.ClassAny, eventbus.SinkFunc{
				SinkName: "console",
				Fn: func(_ context.Context, event eventbus.ChangeEvent) error {
					fmt.Printf("%s %s (version %d)\n", event.ChangeType, event.FilePath, event.VersionNumber)
					return nil
				},
			})

			runner, err := tracker.NewWatchRunner(t, ignore)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Printf("watching %s (ctrl-c to stop)\n", args[0])
			return runner.Run(ctx, args[0])
		},
	}

	cmd.Flags().StringArrayVarP(&ignore, "ignore", "i", nil, "Extra ignore pattern, gitignore syntax (repeatable)")
	return cmd
}
