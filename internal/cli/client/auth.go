package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// probePath is a cheap authenticated request used to check credentials.
const probePath = "/documents?limit=1"

// AuthCmd creates the auth parent command
func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored credentials",
		Long:  "Store, remove and inspect the API key and URL kept in ~/.config/finknow/config.json.",
	}

	cmd.AddCommand(AuthLoginCmd())
	cmd.AddCommand(AuthLogoutCmd())
	cmd.AddCommand(AuthStatusCmd())

	return cmd
}

// AuthLoginCmd creates the auth login command
func AuthLoginCmd() *cobra.Command {
	var (
		apiKey   string
		apiURL   string
		noVerify bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key and URL",
		Long:  "Checks the key against the server, then stores it in the global config. Prompts for the key when --key is not given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(cmd.InOrStdin(), cmd.OutOrStdout(), apiKey, apiURL, !noVerify)
		},
	}

	cmd.Flags().StringVar(&apiKey, "key", "", "API key (the server's FINKNOW_API_KEY)")
	cmd.Flags().StringVar(&apiURL, "url", defaultAPIURL, "API URL")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "Store the credentials without contacting the server")

	return cmd
}

// AuthLogoutCmd creates the auth logout command
func AuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout(cmd.OutOrStdout())
		},
	}
}

// AuthStatusCmd creates the auth status command
func AuthStatusCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which credentials are in use",
		Long:  "Shows the resolved API URL and key and where each came from (flag, env, global config).",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			flagKey, _ := cmd.Flags().GetString("api-key")
			flagURL, _ := cmd.Flags().GetString("api-url")
			return runAuthStatus(cmd.OutOrStdout(), flagKey, flagURL, check, outputJSON)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Also send a request to confirm the server accepts the key")

	return cmd
}

func runAuthLogin(in io.Reader, w io.Writer, apiKey, apiURL string, verify bool) error {
	if apiKey == "" && in != nil {
		fmt.Fprint(w, "Enter API key: ")
		input, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		apiKey = strings.TrimSpace(input)
	}
	if apiKey == "" {
		return fmt.Errorf("API key is required")
	}
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	if verify {
		if err := probe(apiKey, apiURL); err != nil {
			return fmt.Errorf("credentials rejected by %s: %w", apiURL, err)
		}
	}

	if err := SaveGlobalConfig(&GlobalConfig{APIKey: apiKey, APIURL: apiURL}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintf(w, "Logged in to %s\n", apiURL)
	return nil
}

func runAuthLogout(w io.Writer) error {
	if err := DeleteGlobalConfig(); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	fmt.Fprintln(w, "Stored credentials removed")
	return nil
}

type authStatus struct {
	Credentials
	APIKey    string `json:"api_key,omitempty"`
	Checked   bool   `json:"checked"`
	Reachable bool   `json:"reachable,omitempty"`
	CheckErr  string `json:"check_error,omitempty"`
}

func runAuthStatus(w io.Writer, flagKey, flagURL string, check, outputJSON bool) error {
	creds, err := ResolveCredentials(flagKey, flagURL)
	if err != nil {
		return err
	}

	status := authStatus{Credentials: creds, Checked: check}
	if creds.APIKey != "" {
		status.APIKey = maskAPIKey(creds.APIKey)
	}
	if check {
		if err := probe(creds.APIKey, creds.APIURL); err != nil {
			status.CheckErr = err.Error()
		} else {
			status.Reachable = true
		}
	}

	if outputJSON {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	fmt.Fprintf(w, "API URL: %s (%s)\n", creds.APIURL, creds.URLSource)
	if creds.APIKey == "" {
		fmt.Fprintln(w, "API key: none (only works against servers without FINKNOW_API_KEY)")
	} else {
		fmt.Fprintf(w, "API key: %s (%s)\n", status.APIKey, creds.KeySource)
	}
	if check {
		if status.Reachable {
			fmt.Fprintln(w, "Server: credentials accepted")
		} else {
			fmt.Fprintf(w, "Server: %s\n", status.CheckErr)
		}
	}
	return nil
}

func probe(apiKey, apiURL string) error {
	api, err := NewAPIClientWithConfig(apiKey, apiURL)
	if err != nil {
		return err
	}
	_, err = api.Get(probePath)
	return err
}

func maskAPIKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
