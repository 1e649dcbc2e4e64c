package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cloo-solutions/finknow/internal/service"
	"github.com/spf13/cobra"
)

// CheckCmd returns the check command
func CheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the vector store with the content cache",
		Long: `Report stored documents the content cache does not know (a re-upload would store
them again) and cache entries whose document is gone from the store (a re-upload
would be skipped). With --prune the stale cache entries are removed.`,
		RunE: runCheck,
	}

	cmd.Flags().Bool("prune", false, "Remove cache entries whose document is no longer stored")
	cmd.Flags().Bool("json", false, "Output the report as JSON")

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	st, err := buildStack(ctx, cfg, stackOptions{})
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := st.documents.Consistency(ctx)
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printConsistency(cmd.OutOrStdout(), report)
	}

	prune, _ := cmd.Flags().GetBool("prune")
	if prune && len(report.StaleCacheEntries) > 0 {
		removed, err := st.documents.PruneCache(ctx)
		if err != nil {
			return fmt.Errorf("failed to prune cache: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Removed %d stale cache entries\n", removed)
	}

	return nil
}

func printConsistency(w io.Writer, report *service.ConsistencyReport) {
	fmt.Fprintf(w, "Documents in store: %d\n", report.StoreDocuments)
	fmt.Fprintf(w, "Cache entries:      %d\n", report.CacheEntries)

	if report.Consistent() {
		fmt.Fprintln(w, "Store and cache are consistent.")
		return
	}

	if len(report.MissingFromCache) > 0 {
		fmt.Fprintf(w, "\nStored but not cached (%d):\n", len(report.MissingFromCache))
		for _, id := range report.MissingFromCache {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
	if len(report.StaleCacheEntries) > 0 {
		fmt.Fprintf(w, "\nCached but not stored (%d):\n", len(report.StaleCacheEntries))
		for _, id := range report.StaleCacheEntries {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
}
