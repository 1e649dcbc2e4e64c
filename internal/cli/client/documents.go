package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/spf13/cobra"
)

// DocumentItem is one stored document.
type DocumentItem struct {
	ID          string `json:"document_id"`
	Filename    string `json:"filename"`
	ContentHash string `json:"content_hash,omitempty"`
}

// DocumentPage is one page of the document listing.
type DocumentPage struct {
	Items   []DocumentItem `json:"items"`
	Cursor  string         `json:"cursor,omitempty"`
	HasMore bool           `json:"has_more"`
}

// DeleteResult reports a deletion.
type DeleteResult struct {
	DocumentIDs []string `json:"document_ids"`
	Status      string   `json:"status"`
	Forgotten   int      `json:"cache_entries_removed"`
}

// ConsistencyReport compares the store with the server's content cache.
type ConsistencyReport struct {
	StoreDocuments    int      `json:"store_documents"`
	CacheEntries      int      `json:"cache_entries"`
	MissingFromCache  []string `json:"missing_from_cache"`
	StaleCacheEntries []string `json:"stale_cache_entries"`
	Consistent        bool     `json:"consistent"`
}

// DocumentsCmd creates the documents parent command.
func DocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "Manage stored documents",
	}

	cmd.AddCommand(documentsListCmd())
	cmd.AddCommand(documentsDeleteCmd())
	cmd.AddCommand(documentsDownloadCmd())
	cmd.AddCommand(documentsCheckCmd())

	return cmd
}

func documentsListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runDocumentsList(api, cmd.OutOrStdout(), limit, cursor, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of documents")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runDocumentsList(api *APIClient, w io.Writer, limit int, cursor string, outputJSON bool) error {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	path := "/documents"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	var page DocumentPage
	if err := json.Unmarshal(resp.Data, &page); err != nil {
		return fmt.Errorf("failed to parse document list: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(page, "", "  ")
		fmt.Fprintln(w, string(output))
		return nil
	}

	if len(page.Items) == 0 {
		fmt.Fprintln(w, "No documents found.")
		return nil
	}

	for _, doc := range page.Items {
		fmt.Fprintf(w, "%s  %s\n", doc.ID, doc.Filename)
	}
	if page.HasMore && page.Cursor != "" {
		fmt.Fprintf(w, "\nMore documents available. Use --cursor %s\n", page.Cursor)
	}

	return nil
}

func documentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document_id>...",
		Short: "Delete documents and their chunks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runDocumentsDelete(api, cmd.OutOrStdout(), args, outputJSON)
		},
	}
}

func runDocumentsDelete(api *APIClient, w io.Writer, ids []string, outputJSON bool) error {
	var (
		resp *APIResponse
		err  error
	)
	if len(ids) == 1 {
		resp, err = api.Delete("/documents/" + url.PathEscape(ids[0]))
	} else {
		resp, err = api.Post("/documents/delete", map[string][]string{"document_ids": ids})
	}
	if err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}

	var result DeleteResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse delete response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(w, string(output))
		return nil
	}

	fmt.Fprintf(w, "Deleted %d documents (%s)\n", len(result.DocumentIDs), result.Status)
	return nil
}

func documentsDownloadCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "download <document_id>",
		Short: "Download the original uploaded file",
		Long:  "Downloads the archived original of a document. Requires the server to have S3 storage configured.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			return runDocumentsDownload(api, cmd.OutOrStdout(), args[0], outputPath)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "dest", "o", "", "Output file path (default: original filename)")

	return cmd
}

func runDocumentsDownload(api *APIClient, w io.Writer, documentID, outputPath string) error {
	if outputPath == "" {
		resp, err := api.Get("/documents/" + url.PathEscape(documentID))
		if err != nil {
			return fmt.Errorf("failed to get document: %w", err)
		}
		var doc DocumentItem
		if err := json.Unmarshal(resp.Data, &doc); err != nil {
			return fmt.Errorf("failed to parse document: %w", err)
		}
		outputPath = safeFilename(doc.Filename, documentID)
	}

	resp, err := api.Get("/documents/" + url.PathEscape(documentID) + "/download")
	if err != nil {
		return fmt.Errorf("failed to get download URL: %w", err)
	}

	var link struct {
		DownloadURL string `json:"download_url"`
	}
	if err := json.Unmarshal(resp.Data, &link); err != nil {
		return fmt.Errorf("failed to parse download URL response: %w", err)
	}
	if link.DownloadURL == "" {
		return fmt.Errorf("no download URL returned")
	}

	if err := api.DownloadFileWithProgress(link.DownloadURL, outputPath, nil); err != nil {
		return fmt.Errorf("failed to download document: %w", err)
	}

	fmt.Fprintf(w, "Downloaded %s to %s\n", documentID, outputPath)
	return nil
}

func documentsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compare stored documents with the server's content cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runDocumentsCheck(api, cmd.OutOrStdout(), outputJSON)
		},
	}
}

func runDocumentsCheck(api *APIClient, w io.Writer, outputJSON bool) error {
	resp, err := api.Get("/documents/consistency")
	if err != nil {
		return fmt.Errorf("failed to check consistency: %w", err)
	}

	var report ConsistencyReport
	if err := json.Unmarshal(resp.Data, &report); err != nil {
		return fmt.Errorf("failed to parse consistency report: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(w, string(output))
		return nil
	}

	fmt.Fprintf(w, "Documents in store: %d, cache entries: %d\n", report.StoreDocuments, report.CacheEntries)
	if report.Consistent {
		fmt.Fprintln(w, "Consistent.")
		return nil
	}
	for _, id := range report.MissingFromCache {
		fmt.Fprintf(w, "stored but not cached: %s\n", id)
	}
	for _, id := range report.StaleCacheEntries {
		fmt.Fprintf(w, "cached but not stored: %s\n", id)
	}
	return nil
}

// safeFilename keeps only the base name so a stored filename cannot write outside the working directory.
func safeFilename(filename, fallback string) string {
	if filename == "" || filename == domain.UnknownFilename {
		return fallback
	}
	base := filepath.Base(filepath.Clean("/" + filename))
	if base == "/" || base == "." {
		return fallback
	}
	return base
}
