package client

import (
	"fmt"

	"github.com/spf13/cobra"

	transports "github.com/rzbill/linelog/internal/cmd/client/transports"
)

// NewHealthCommand constructs the `health` command, which queries the gRPC
// health service.
func NewHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, _ := cmd.Flags().GetString("service")
			status, err := transports.NewGrpcTransport(dialGRPCContext).Health(cmd.Context(), service)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "status:", status)
			if status != "SERVING" {
				return fmt.Errorf("server is %s", status)
			}
			return nil
		},
	}
	cmd.Flags().String("service", "", "Service name (empty = whole server)")
	return cmd
}
