package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize the database schema",
	Long: `Initialize the mboxvault database with the required schema.

This command creates the email table, its full-text index, the folder
registry and the search history. It is safe to run multiple times: tables
are only created if they don't already exist.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := cfg.DatabasePath()
		logger.Info("initializing database", "path", dbPath)

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		logger.Info("database initialized successfully")

		stats, err := s.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Database: %s\n", dbPath)
		fmt.Fprintf(out, "  Emails:      %d\n", stats.EmailCount)
		fmt.Fprintf(out, "  Folders:     %d\n", stats.FolderCount)
		fmt.Fprintf(out, "  Full-text:   %s\n", ftsLabel(stats.FTS5Available))
		fmt.Fprintf(out, "  Size:        %s\n", formatSize(stats.DatabaseSize))
		return nil
	},
}

func ftsLabel(available bool) string {
	if available {
		return "FTS5"
	}
	return "unavailable (LIKE fallback)"
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
