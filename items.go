package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List archive items",
		Args:  cobra.NoArgs,
		RunE:  runLs,
	}

	cmd.Flags().Bool("notes", false, "list notes instead of key items")
	cmd.Flags().Bool("deleted", false, "list items in the trash")
	cmd.MarkFlagsMutuallyExclusive("notes", "deleted")

	return cmd
}

func newFavoriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "favorite <path>",
		Short: "Toggle the favorite flag of an item",
		Long: `Toggle whether an item is a favorite. The change reaches the device on
the next sync.`,
		Args: cobra.ExactArgs(1),
		RunE: runFavorite,
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete an item (moves it to the trash)",
		Long: `Delete an item from the local archive. Its content is kept in the trash
and can be restored with "trash restore". The next sync deletes it from the
device as well.`,
		Args: cobra.ExactArgs(1),
		RunE: runRm,
	}
}

// openLocal opens a session for commands that only touch local state.
func openLocal(ctx context.Context) (*session, error) {
	return openSession(ctx, resolvedCfg, buildLogger(resolvedCfg))
}

// itemJSON is the JSON shape of one listed item.
type itemJSON struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Size     int    `json:"size"`
	Favorite bool   `json:"favorite"`
	Status   string `json:"status"`
}

func runLs(cmd *cobra.Command, _ []string) error {
	notes, err := cmd.Flags().GetBool("notes")
	if err != nil {
		return err
	}

	deleted, err := cmd.Flags().GetBool("deleted")
	if err != nil {
		return err
	}

	s, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	var items []archive.Item

	switch {
	case notes:
		items = s.archive.Notes()
	case deleted:
		items = s.archive.Deleted()
	default:
		items = s.archive.Items()
	}

	return printItems(items)
}

func printItems(items []archive.Item) error {
	if flagJSON {
		out := make([]itemJSON, 0, len(items))
		for _, it := range items {
			out = append(out, itemJSON{
				Path:     string(it.Path),
				Name:     it.Name,
				Type:     it.Type.String(),
				Size:     len(it.Content),
				Favorite: it.Favorite,
				Status:   it.Status.String(),
			})
		}

		return printJSON(os.Stdout, out)
	}

	if len(items) == 0 {
		statusf(flagQuiet, "No items.\n")
		return nil
	}

	rows := make([][]string, 0, len(items))
	for _, it := range items {
		fav := ""
		if it.Favorite {
			fav = "*"
		}

		rows = append(rows, []string{
			string(it.Path),
			it.Type.String(),
			formatSize(int64(len(it.Content))),
			fav,
			it.Status.String(),
		})
	}

	printTable(os.Stdout, []string{"PATH", "TYPE", "SIZE", "FAV", "STATUS"}, rows)

	return nil
}

func runFavorite(cmd *cobra.Command, args []string) error {
	p, err := archive.NewPath(args[0])
	if err != nil {
		return err
	}

	s, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	on, err := s.archive.ToggleFavorite(cmd.Context(), p)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(os.Stdout, map[string]any{"path": string(p), "favorite": on})
	}

	if on {
		statusf(flagQuiet, "Added %s to favorites.\n", p)
	} else {
		statusf(flagQuiet, "Removed %s from favorites.\n", p)
	}

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	p, err := archive.NewPath(args[0])
	if err != nil {
		return err
	}

	s, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.archive.Delete(cmd.Context(), p); err != nil {
		return fmt.Errorf("deleting %s: %w", p, err)
	}

	statusf(flagQuiet, "Moved %s to the trash.\n", p)

	return nil
}
