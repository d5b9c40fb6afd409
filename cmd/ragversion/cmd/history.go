package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sourangshupal/ragversion/internal/ragerrors"
	"github.com/sourangshupal/ragversion/internal/storage"
)

// resolveDocument accepts either a document ID or a file path.
func resolveDocument(cmd *cobra.Command, store storage.Storage, ref string) (*storage.Document, error) {
	doc, err := store.GetDocumentByID(cmd.Context(), ref)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc, err = store.GetDocumentByPath(cmd.Context(), ref)
		if err != nil {
			return nil, err
		}
	}
	if doc == nil {
		return nil, ragerrors.NotFoundError(fmt.Sprintf("no document matches %q", ref), nil).
			WithSuggestion("pass a document ID or the absolute path of a tracked file")
	}
	return doc, nil
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <document-id|path>",
		Short: "Show the version history of a tracked document",
		Args:  cobra.ExactArgs(1),
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

			versions, err := t.Storage().ListVersions(cmd.Context(), doc.ID, limit, 0)
			if err != nil {
				return err
			}

			state := ""
			if doc.IsDeleted {
				state = " (untracked)"
			}
			fmt.Printf("%s%s\n", doc.FilePath, state)
			for _, v := range versions {
				fmt.Printf("  v%-4d %-9s %s  %s\n",
					v.VersionNumber, colorChange(string(v.ChangeType)), v.CreatedAt.Format(time.RFC3339), v.ContentHash[:12])
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum versions to show")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var fileType string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List tracked documents and storage health",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, cfg, err := openTracker(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = t.Close() }()

			if err := t.Storage().Ping(cmd.Context()); err != nil {
				return ragerrors.StorageError(ragerrors.SubkindConnectivity, "storage is unreachable", err)
			}
			fmt.Printf("storage: %s (ok)\n", t.Storage().BackendIdentity())
			fmt.Printf("backend: %s, chunking: %v\n", cfg.Storage.Backend, cfg.Chunking.Enabled)

			docs, err := t.Storage().ListDocuments(cmd.Context(),
				storage.ListFilter{FileType: fileType}, storage.OrderUpdatedAtDesc, 50, 0)
			if err != nil {
				return err
			}
			for _, d := range docs {
				fmt.Printf("  v%-4d %s  %s\n", d.CurrentVersion, d.UpdatedAt.Format("2006-01-02 15:04"), d.FilePath)
			}
			fmt.Printf("%d documents\n", len(docs))
			return nil
		},
	}

	cmd.Flags().StringVar(&fileType, "type", "", "Filter by file type (e.g. .md)")
	return cmd
}
