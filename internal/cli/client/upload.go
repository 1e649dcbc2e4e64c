package client

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// UploadCmd creates the upload command.
func UploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload PDF or text files for ingestion",
		Long: `Uploads files to the server, which extracts, chunks, embeds and stores them.
Progress is printed after every stored batch. Files already ingested with
identical content are reported with their existing document ID.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runUpload(api, cmd.OutOrStdout(), args, outputJSON)
		},
	}

	return cmd
}

func runUpload(api *APIClient, w io.Writer, paths []string, outputJSON bool) error {
	var results []*IngestResult
	failed := 0

	err := api.UploadFiles(paths, func(ev UploadEvent) {
		switch ev.Event {
		case "progress":
			if !outputJSON {
				fmt.Fprintf(w, "%s: stored batch %d/%d\n", ev.Filename, ev.Completed, ev.Total)
			}
		case "done":
			results = append(results, ev.Result)
			if outputJSON || ev.Result == nil {
				return
			}
			if ev.Result.CacheHit {
				fmt.Fprintf(w, "%s: already ingested as %s\n", ev.Filename, ev.Result.DocumentID)
			} else {
				fmt.Fprintf(w, "%s: ready as %s (%d chunks)\n", ev.Filename, ev.Result.DocumentID, ev.Result.NumChunks)
			}
		case "error":
			failed++
			if outputJSON {
				return
			}
			msg := "unknown error"
			if ev.Error != nil {
				msg = ev.Error.Error
				if ev.Error.BatchesStored > 0 {
					msg += fmt.Sprintf(" (%d batches stored as %s)", ev.Error.BatchesStored, ev.Error.DocumentID)
				}
			}
			fmt.Fprintf(w, "%s: %s\n", ev.Filename, msg)
		}
	})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(map[string]interface{}{
			"documents": results,
			"failed":    failed,
		}, "", "  ")
		fmt.Fprintln(w, string(output))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}
