package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewArchiveCommand constructs the `archive` command.
func NewArchiveCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "List records released by the device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			reverse, _ := cmd.Flags().GetBool("reverse")
			page, err := deviceTransport(baseURL).ListArchive(cmd.Context(), limit, reverse)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range page.Entries {
				if err := enc.Encode(decodedArchived(e)); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "archived: %d dropped: %d\n", page.Count, page.Dropped)
			return nil
		},
	}
	cmd.Flags().Int("limit", 0, "Maximum records (0 = server default)")
	cmd.Flags().Bool("reverse", false, "Newest first")
	return cmd
}
