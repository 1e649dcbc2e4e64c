package client

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	envAPIKey = "FINKNOW_API_KEY"
	envAPIURL = "FINKNOW_API_URL"

	defaultAPIURL = "http://localhost:8080"

	// Uploads block until the file is embedded and stored.
	defaultTimeout = 10 * time.Minute
)

type APIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAPIClientWithCmd resolves credentials from the --api-key and --api-url flags of cmd, then the
// environment, then the global config. A nil cmd skips the flags.
func NewAPIClientWithCmd(cmd *cobra.Command) (*APIClient, error) {
	var flagKey, flagURL string
	if cmd != nil {
		flagKey, _ = cmd.Flags().GetString("api-key")
		flagURL, _ = cmd.Flags().GetString("api-url")
	}

	creds, err := ResolveCredentials(flagKey, flagURL)
	if err != nil {
		return nil, err
	}
	return NewAPIClientWithConfig(creds.APIKey, creds.APIURL)
}

// NewAPIClient loads .env and resolves credentials for cmd.
func NewAPIClient(cmd *cobra.Command) (*APIClient, error) {
	_ = godotenv.Load()
	return NewAPIClientWithCmd(cmd)
}

// NewAPIClientWithConfig creates an APIClient with explicit config (used by init before .env exists).
func NewAPIClientWithConfig(apiKey, baseURL string) (*APIClient, error) {
	return &APIClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}, nil
}

// APIResponse represents the standard API response format.
type APIResponse struct {
	Data          json.RawMessage `json:"data,omitempty"`
	Error         string          `json:"error,omitempty"`
	Stage         string          `json:"stage,omitempty"`
	DocumentID    string          `json:"document_id,omitempty"`
	BatchesStored int             `json:"batches_stored,omitempty"`
}

// APIError represents an error from the API.
type APIError struct {
	StatusCode int
	Message    string
	// Stage names the pipeline stage that failed, when the server reported one.
	Stage string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Get performs a GET request.
func (c *APIClient) Get(path string) (*APIResponse, error) {
	return c.do(http.MethodGet, path, nil)
}

// Post performs a POST request with JSON body.
func (c *APIClient) Post(path string, body interface{}) (*APIResponse, error) {
	return c.do(http.MethodPost, path, body)
}

// Delete performs a DELETE request.
func (c *APIClient) Delete(path string) (*APIResponse, error) {
	return c.do(http.MethodDelete, path, nil)
}

func (c *APIClient) do(method, path string, body interface{}) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.send(req)
}

func (c *APIClient) send(req *http.Request) (*APIResponse, error) {
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Message:    string(respBody),
			}
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    apiResp.Error,
			Stage:      apiResp.Stage,
		}
	}

	return &apiResp, nil
}

func (c *APIClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// UploadEvent is one line of a streamed upload.
type UploadEvent struct {
	Event     string        `json:"event"`
	Filename  string        `json:"filename"`
	Completed int           `json:"completed,omitempty"`
	Total     int           `json:"total,omitempty"`
	Result    *IngestResult `json:"result,omitempty"`
	Error     *APIResponse  `json:"error,omitempty"`
}

// IngestResult describes one ingested document.
type IngestResult struct {
	DocumentID  string `json:"document_id"`
	ContentHash string `json:"content_hash"`
	Filename    string `json:"filename"`
	NumChunks   int    `json:"num_chunks"`
	Batches     int    `json:"batches"`
	CacheHit    bool   `json:"cache_hit"`
}

// UploadFiles posts every path as a "file" part and streams the server's NDJSON events to onEvent.
func (c *APIClient) UploadFiles(paths []string, onEvent func(UploadEvent)) error {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeFileParts(form, paths))
	}()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/documents?stream=true", pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		var apiResp APIResponse
		if json.Unmarshal(body, &apiResp) == nil && apiResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: apiResp.Error, Stage: apiResp.Stage}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev UploadEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("failed to parse upload event: %w", err)
		}
		onEvent(ev)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read upload events: %w", err)
	}

	return nil
}

func writeFileParts(form *multipart.Writer, paths []string) error {
	for _, path := range paths {
		if err := writeFilePart(form, path); err != nil {
			return err
		}
	}
	return form.Close()
}

func writeFilePart(form *multipart.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to send %s: %w", path, err)
	}
	return nil
}

// ProgressFunc is a callback for reporting download progress.
type ProgressFunc func(current, total int64)

// progressReader wraps an io.Reader and reports progress.
type progressReader struct {
	reader     io.Reader
	total      int64
	current    int64
	onProgress ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)
	if pr.onProgress != nil {
		pr.onProgress(pr.current, pr.total)
	}
	return n, err
}

// DownloadFileWithProgress downloads a presigned URL to outputPath.
func (c *APIClient) DownloadFileWithProgress(url, outputPath string, onProgress ProgressFunc) error {
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	var reader io.Reader = resp.Body
	if onProgress != nil {
		reader = &progressReader{
			reader:     resp.Body,
			total:      resp.ContentLength,
			onProgress: onProgress,
		}
	}

	if _, err := io.Copy(out, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
