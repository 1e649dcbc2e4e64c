package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/finknow/internal/cli"
	"github.com/cloo-solutions/finknow/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "finknow",
		Short: "Finknow CLI - question answering over your financial documents",
		Long: `Finknow CLI uploads documents to a finknow server and asks questions about them.

Environment variables:
  FINKNOW_API_KEY   API key for authentication (if the server requires one)
  FINKNOW_API_URL   API base URL (default: http://localhost:8080)`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.InitCmd())
	rootCmd.AddCommand(client.AuthCmd())
	rootCmd.AddCommand(client.UploadCmd())
	rootCmd.AddCommand(client.DocumentsCmd())
	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.RetrieveCmd())
	rootCmd.AddCommand(client.ChatCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
