package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wesm/mboxvault/internal/store"
)

var bulkValue string

func parseOneID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid email ID %q", arg)
	}
	return id, nil
}

var tagCmd = &cobra.Command{
	Use:   "tag <id> <tag>",
	Short: "Add a tag to an email",
	Long: `Add a tag to an email. Tags are single words; inner spaces become
dashes. Adding a tag the email already has changes nothing.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseOneID(args[0])
		if err != nil {
			return err
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		added, err := s.AddTag(cmd.Context(), id, args[1])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("email %d not found", id)
		}
		if err != nil {
			return err
		}
		if added {
			fmt.Fprintf(cmd.OutOrStdout(), "Tagged email %d.\n", id)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Email %d already has that tag.\n", id)
		}
		return nil
	},
}

// newToggleCmd builds a command that flips one flag on one email.
func newToggleCmd(use string, flag store.Flag, on, off string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: fmt.Sprintf("Toggle the %s flag of an email", flag),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOneID(args[0])
			if err != nil {
				return err
			}
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			value, err := s.ToggleFlag(cmd.Context(), id, flag)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("email %d not found", id)
			}
			if err != nil {
				return err
			}
			state := off
			if value {
				state = on
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Email %d is now %s.\n", id, state)
			return nil
		},
	}
}

var bulkCmd = &cobra.Command{
	Use:   "bulk <action> <id>...",
	Short: "Apply one action to many emails",
	Long: `Apply one action to many emails in a single transaction.

Actions:
  move          Move to the folder given by --value
  delete        Move to the bin
  restore       Move from the bin back to the inbox
  mark_read     Mark as read
  mark_unread   Mark as unread
  star          Star
  unstar        Remove the star
  add_tag       Add the tag given by --value

IDs may be separated by spaces or commas.

Examples:
  mboxvault bulk delete 12 13 14
  mboxvault bulk move 12,13 --value receipts`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		op := store.BulkOp(strings.ToLower(args[0]))
		switch op {
		case store.BulkMove, store.BulkDelete, store.BulkRestore, store.BulkMarkRead,
			store.BulkMarkUnread, store.BulkStar, store.BulkUnstar, store.BulkAddTag:
		default:
			return fmt.Errorf("unknown action %q", args[0])
		}
		if (op == store.BulkMove || op == store.BulkAddTag) && strings.TrimSpace(bulkValue) == "" {
			return fmt.Errorf("%s requires --value", op)
		}
		ids, err := parseIDs(args[1:])
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.BulkAction(cmd.Context(), ids, op, bulkValue)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d of %d emails changed.\n", op, n, len(ids))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(newToggleCmd("star", store.FlagStarred, "starred", "not starred"))
	rootCmd.AddCommand(newToggleCmd("read", store.FlagRead, "read", "unread"))
	rootCmd.AddCommand(bulkCmd)

	bulkCmd.Flags().StringVar(&bulkValue, "value", "", "Folder for move, tag for add_tag")
}
