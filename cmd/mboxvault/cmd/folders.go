package cmd

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/mboxvault/internal/store"
)

var (
	folderIcon   string
	historyLimit int
	historyClear bool
)

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List folders with unread counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		folders, err := s.ListFolders(cmd.Context())
		if err != nil {
			return err
		}
		unread, err := s.UnreadCounts(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FOLDER\tTYPE\tUNREAD")
		for _, f := range folders {
			fmt.Fprintf(w, "%s\t%s\t%d\n", f.Name, f.Type, unread[f.Name])
		}
		return w.Flush()
	},
}

var folderCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a user folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.CreateFolder(cmd.Context(), args[0], folderIcon); err != nil {
			if errors.Is(err, store.ErrFolderExists) {
				return fmt.Errorf("folder %q already exists", args[0])
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created folder %q.\n", args[0])
		return nil
	},
}

var folderDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a user folder",
	Long: `Delete a user folder from the registry. Emails filed in it keep their
folder value; move them first with 'bulk move'. System folders cannot be
deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.DeleteFolder(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted folder %q.\n", args[0])
		return nil
	},
}

var unreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Show unread counts per folder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		counts, err := s.UnreadCounts(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(counts) == 0 {
			fmt.Fprintln(out, "No unread email.")
			return nil
		}
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "%-12s %d\n", name, counts[name])
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent searches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		out := cmd.OutOrStdout()
		if historyClear {
			if err := s.ClearSearchHistory(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, "Search history cleared.")
			return nil
		}

		entries, err := s.ListSearchHistory(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No searches yet.")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s  %s\n", e.LastUsed.Local().Format(time.DateTime), e.Query)
		}
		return nil
	},
}

func init() {
	foldersCmd.AddCommand(folderCreateCmd)
	foldersCmd.AddCommand(folderDeleteCmd)
	rootCmd.AddCommand(foldersCmd)
	rootCmd.AddCommand(unreadCmd)
	rootCmd.AddCommand(historyCmd)

	folderCreateCmd.Flags().StringVar(&folderIcon, "icon", "", "Icon name (default: label)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of entries (0 for all)")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Delete the search history")
}
