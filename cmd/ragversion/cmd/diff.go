package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sourangshupal/ragversion/internal/ragerrors"
)

func parseVersionArg(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, ragerrors.ConfigError(fmt.Sprintf("version must be a positive integer, got %q", arg), err)
	}
	return n, nil
}

func newDiffCmd() *cobra.Command {
	var chunks bool

	cmd := &cobra.Command{
		Use:   "diff <document-id|path> <from> <to>",
		Short: "Compare two stored versions of a document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, _, err := openTracker(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = t.Close() }()

			doc, err := resolveDocument(cmd, t.Storage(), args[0])
			if err != nil {
				return err
			}
			from, err := parseVersionArg(args[1])
			if err != nil {
				return err
			}
			to, err := parseVersionArg(args[2])
			if err != nil {
				return err
			}

			if chunks {
				diff, err := t.GetChunkDiff(cmd.Context(), doc.ID, from, to)
				if err != nil {
					return err
				}
				fmt.Printf("chunks v%d -> v%d: %d added, %d removed, %d unchanged, %d reordered (%.0f%% reusable)\n",
					from, to, len(diff.Added), len(diff.Removed), len(diff.Unchanged), len(diff.Reordered),
					diff.SavingsPercentage()*100)
				return nil
			}

			diff, err := t.GetDiff(cmd.Context(), doc.ID, from, to)
			if err != nil {
				return err
			}
			fmt.Printf("similarity: %.2f\n", diff.Similarity)
			fmt.Print(diff.UnifiedDiff)
			return nil
		},
	}

	cmd.Flags().BoolVar(&chunks, "chunks", false, "Show the chunk-level diff instead of a line diff")
	return cmd
}
