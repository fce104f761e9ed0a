package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show archive statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := s.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Database: %s\n", cfg.DatabasePath())
		fmt.Fprintf(out, "  Emails:         %d\n", stats.EmailCount)
		fmt.Fprintf(out, "  Unread:         %d\n", stats.UnreadCount)
		fmt.Fprintf(out, "  In bin:         %d\n", stats.DeletedCount)
		fmt.Fprintf(out, "  Folders:        %d\n", stats.FolderCount)
		fmt.Fprintf(out, "  Saved searches: %d\n", stats.HistoryCount)
		fmt.Fprintf(out, "  Full-text:      %s\n", ftsLabel(stats.FTS5Available))
		fmt.Fprintf(out, "  Size:           %s\n", formatSize(stats.DatabaseSize))
		return nil
	},
}

var rebuildIndexCmd = &cobra.Command{
	Use:   "rebuild-index",
	Short: "Rebuild the full-text search index",
	Long: `Rebuild the full-text search index from the stored emails.

Imports keep the index current; run this after editing the database by
hand or if text searches miss mail you know is there.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		start := time.Now()
		if err := s.RebuildIndex(cmd.Context()); err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Index rebuilt in %s.\n", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(rebuildIndexCmd)
}
