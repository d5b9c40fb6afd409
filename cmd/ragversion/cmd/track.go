package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sourangshupal/ragversion/internal/config"
	"github.com/sourangshupal/ragversion/internal/ragerrors"
	"github.com/sourangshupal/ragversion/internal/tracker"
)

// openTracker loads configuration and opens the configured backend.
// Callers must Close the returned tracker.
func openTracker(cmd *cobra.Command) (*tracker.Tracker, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	t, err := tracker.New(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return t, cfg, nil
}

func parseMetadataFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, ragerrors.ConfigError(fmt.Sprintf("metadata must be key=value, got %q", pair), nil)
		}
		meta[k] = v
	}
	return meta, nil
}

func newTrackCmd() *cobra.Command {
	var (
		metaPairs  []string
		withChunks bool
	)

	cmd := &cobra.Command{
		Use:   "track <path>",
		Short: "Track one file, creating a new version if it changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, _, err := openTracker(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = t.Close() }()

			meta, err := parseMetadataFlags(metaPairs)
			if err != nil {
				return err
			}

			var result *tracker.TrackResult
			if withChunks {
				result, err = t.TrackWithChunks(cmd.Context(), args[0], meta)
			} else {
				result, err = t.Track(cmd.Context(), args[0], meta)
			}
			if err != nil {
				return err
			}

			if !result.Changed {
				fmt.Printf("unchanged  %s (version %d)\n", result.FilePath, result.VersionNumber)
				return nil
			}
			fmt.Printf("%s %s -> version %d\n", colorChange(string(result.ChangeType)), result.FilePath, result.VersionNumber)
			if diff := result.ChunkDiff; diff != nil {
				fmt.Printf("chunks: %d added, %d removed, %d unchanged, %d reordered (%.0f%% reusable)\n",
					len(diff.Added), len(diff.Removed), len(diff.Unchanged), len(diff.Reordered),
					diff.SavingsPercentage()*100)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&metaPairs, "meta", "m", nil, "Document metadata as key=value (repeatable)")
	cmd.Flags().BoolVar(&withChunks, "chunks", false, "Report the chunk-level diff against the previous version")
	return cmd
}
