package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the linelog client.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "linelog",
		Short: "linelog client commands",
	}
	AddCommands(root, baseURL)
	return root
}

// AddCommands registers every client command on root.
func AddCommands(root *cobra.Command, baseURL BaseURLFunc) {
	root.AddCommand(
		NewWriteCommand(baseURL),
		NewReadCommand(baseURL),
		NewRecordsCommand(baseURL),
		NewPositionCommand(baseURL),
		NewStatsCommand(baseURL),
		NewArchiveCommand(baseURL),
		NewHealthCommand(),
	)
}
