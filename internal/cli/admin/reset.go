package admin

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// ResetCmd returns the reset command
func ResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every stored chunk and clear the content cache",
		Long:  "Drop and recreate the vector collection, then clear the content cache. Requires --yes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}

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

			if err := st.documents.Reset(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Collection %s reset and cache cleared\n", cfg.Collection)
			return nil
		},
	}

	cmd.Flags().Bool("yes", false, "Confirm the reset")

	return cmd
}
