package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	clientcmd "github.com/remiverdiesen/agents-at-scale/internal/cmd/client"
	serverrun "github.com/remiverdiesen/agents-at-scale/internal/cmd/server"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "ledger",
		Short:        "Session message ledger",
		Long:         "ledger stores agent and LLM interaction events per session and serves them over HTTP, SSE, WebSocket and gRPC.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	rootCmd.AddCommand(serverrun.NewCommand())
	rootCmd.AddCommand(clientcmd.NewSessionCommand(clientcmd.APIURLFromEnv))
	rootCmd.AddCommand(clientcmd.NewStatsCommand(clientcmd.APIURLFromEnv))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
