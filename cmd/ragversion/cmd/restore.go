package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <document-id|path> <version>",
		Short: "Restore a historical version as the new latest version",
		Args:  cobra.ExactArgs(2),
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
			target, err := parseVersionArg(args[1])
			if err != nil {
				return err
			}

			result, err := t.Restore(cmd.Context(), doc.ID, target)
			if err != nil {
				return err
			}
			fmt.Printf("restored %s: v%d copied to new v%d\n", doc.FilePath, target, result.VersionNumber)
			return nil
		},
	}
	return cmd
}

func newUntrackCmd() *cobra.Command {
	var hard bool

	cmd := &cobra.Command{
		Use:   "untrack <document-id|path>",
		Short: "Stop tracking a document",
		Long: `Stop tracking a document. By default this is a soft delete: the
version history is kept and re-tracking the file restores it. With
--hard the document and its entire history are deleted.`,
		Args: cobra.ExactArgs(1),
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
			if err := t.Untrack(cmd.Context(), doc.ID, hard); err != nil {
				return err
			}
			if hard {
				fmt.Printf("deleted %s and all %d versions\n", doc.FilePath, doc.CurrentVersion)
			} else {
				fmt.Printf("untracked %s (history kept)\n", doc.FilePath)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&hard, "hard", false, "Delete the document and its full history")
	return cmd
}
