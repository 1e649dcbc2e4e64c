package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const envFile = ".env"

func InitCmd() *cobra.Command {
	var apiKey string
	var apiURL string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a .env with the server URL and API key",
		Long:  "Checks the credentials against the server, then writes FINKNOW_API_URL and FINKNOW_API_KEY to .env in the current directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), apiKey, apiURL, outputJSON)
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for authentication (empty if the server has none)")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "API base URL (default: http://localhost:8080)")

	return cmd
}

func runInit(in io.Reader, w io.Writer, apiKey, apiURL string, outputJSON bool) error {
	if _, err := os.Stat(envFile); err == nil {
		return fmt.Errorf("%s already exists", envFile)
	}

	_ = godotenv.Load()
	if apiKey == "" {
		apiKey = os.Getenv(envAPIKey)
	}
	if apiKey == "" && in != nil {
		fmt.Fprint(w, "Enter API key (leave empty if the server has none): ")
		input, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		apiKey = strings.TrimSpace(input)
	}

	if apiURL == "" {
		apiURL = os.Getenv(envAPIURL)
	}
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	if err := probe(apiKey, apiURL); err != nil {
		return fmt.Errorf("failed to reach %s: %w", apiURL, err)
	}

	envData := fmt.Sprintf("%s=%s\n%s=%s\n", envAPIURL, apiURL, envAPIKey, apiKey)
	if err := os.WriteFile(envFile, []byte(envData), 0600); err != nil {
		return fmt.Errorf("failed to create %s: %w", envFile, err)
	}

	if outputJSON {
		result := map[string]interface{}{
			"success": true,
			"api_url": apiURL,
			"env":     envFile,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(w, string(data))
	} else {
		fmt.Fprintf(w, "Connected to %s\n", apiURL)
		fmt.Fprintf(w, "Credentials saved to %s\n", envFile)
	}

	return nil
}
