package client

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	transports "github.com/remiverdiesen/agents-at-scale/internal/cmd/client/transports"
)

// NewStatsCommand constructs the `stats` command.
func NewStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show session and message counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			output, _ := cmd.Flags().GetString("output")
			var data struct {
				Sessions      int64 `json:"sessions"`
				TotalMessages int64 `json:"totalMessages"`
			}
			if err := transports.NewHTTPTransport(baseURL(), false).Get(cmd.Context(), "/v1/stats", nil, &data); err != nil {
				return err
			}
			switch output {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(data)
			case "", "text":
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "sessions: %s\nmessages: %s\n",
					humanize.Comma(data.Sessions), humanize.Comma(data.TotalMessages))
				return err
			default:
				return fmt.Errorf("invalid --output %q; use json|text", output)
			}
		},
	}
	statsCmd.Flags().StringP("output", "o", "text", "Output: json|text")
	return statsCmd
}
