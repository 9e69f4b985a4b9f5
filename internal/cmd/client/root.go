package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the ledger client.
// It registers the session command group and stats.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger client commands",
	}
	root.AddCommand(NewSessionCommand(baseURL))
	root.AddCommand(NewStatsCommand(baseURL))
	return root
}
