package client

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/spf13/cobra"
)

const contextPreviewChars = 300

// QueryRequest is the body of /ask and /retrieve.
type QueryRequest struct {
	Question    string   `json:"question"`
	TopK        int      `json:"top_k,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// AskResponse carries the answer and the chunks it was generated from.
type AskResponse struct {
	Answer string               `json:"answer"`
	Found  bool                 `json:"found"`
	Chunks []domain.ScoredChunk `json:"chunks"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var (
		docs        []string
		topK        int
		showContext bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the uploaded documents",
		Long:  "Retrieves the most relevant chunks and answers the question from them.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			req := QueryRequest{Question: args[0], TopK: topK, DocumentIDs: docs}
			return runAsk(api, cmd.OutOrStdout(), req, showContext, outputJSON)
		},
	}

	cmd.Flags().StringSliceVar(&docs, "doc", nil, "Restrict retrieval to these document IDs (repeatable)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (default: server setting)")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "Print the retrieved chunks after the answer")

	return cmd
}

func runAsk(api *APIClient, w io.Writer, req QueryRequest, showContext, outputJSON bool) error {
	resp, err := api.Post("/ask", req)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	var result AskResponse
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse answer: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(w, string(output))
		return nil
	}

	fmt.Fprintln(w, result.Answer)
	if showContext && len(result.Chunks) > 0 {
		fmt.Fprintf(w, "\n%s\nRetrieved context:\n", strings.Repeat("-", 40))
		printChunks(w, result.Chunks)
	}

	return nil
}

// RetrieveCmd creates the retrieve command.
func RetrieveCmd() *cobra.Command {
	var (
		docs []string
		topK int
	)

	cmd := &cobra.Command{
		Use:   "retrieve <question>",
		Short: "Show the chunks most similar to a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			req := QueryRequest{Question: args[0], TopK: topK, DocumentIDs: docs}
			return runRetrieve(api, cmd.OutOrStdout(), req, outputJSON)
		},
	}

	cmd.Flags().StringSliceVar(&docs, "doc", nil, "Restrict retrieval to these document IDs (repeatable)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (default: server setting)")

	return cmd
}

func runRetrieve(api *APIClient, w io.Writer, req QueryRequest, outputJSON bool) error {
	resp, err := api.Post("/retrieve", req)
	if err != nil {
		return fmt.Errorf("retrieve failed: %w", err)
	}

	var result struct {
		Chunks []domain.ScoredChunk `json:"chunks"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse chunks: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(w, string(output))
		return nil
	}

	if len(result.Chunks) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}
	printChunks(w, result.Chunks)
	return nil
}

// ChatCmd creates the chat command.
func ChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a message to the model without document context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}
			return runChat(api, cmd.OutOrStdout(), args[0])
		},
	}
}

func runChat(api *APIClient, w io.Writer, message string) error {
	resp, err := api.Post("/chat", map[string]string{"message": message})
	if err != nil {
		return fmt.Errorf("chat failed: %w", err)
	}

	var result struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse reply: %w", err)
	}

	fmt.Fprintln(w, result.Reply)
	return nil
}

func printChunks(w io.Writer, chunks []domain.ScoredChunk) {
	for i, c := range chunks {
		fmt.Fprintf(w, "%d. %s (%.2f)\n", i+1, c.DisplaySource(), c.Score)
		fmt.Fprintf(w, "   %s\n", preview(c.Text))
	}
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > contextPreviewChars {
		return string(runes[:contextPreviewChars-3]) + "..."
	}
	return text
}
