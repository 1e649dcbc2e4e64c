package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/finknow/internal/cli"
	"github.com/cloo-solutions/finknow/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "finknowd",
		Short:        "Finknow daemon and CLI",
		Long:         "Finknow daemon for running the API server and maintaining the vector store and content cache",
		SilenceUsage: true,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.MigrateCmd())
	rootCmd.AddCommand(admin.IngestCmd())
	rootCmd.AddCommand(admin.CheckCmd())
	rootCmd.AddCommand(admin.ResetCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
