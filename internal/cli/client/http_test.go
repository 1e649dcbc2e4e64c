package client

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressReader_ReportsProgress(t *testing.T) {
	data := []byte("hello world this is test data")
	reader := bytes.NewReader(data)

	var progressCalls []struct{ current, total int64 }
	pr := &progressReader{
		reader: reader,
		total:  int64(len(data)),
		onProgress: func(current, total int64) {
			progressCalls = append(progressCalls, struct{ current, total int64 }{current, total})
		},
	}

	result, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, data, result)

	// Progress should have been called at least once
	assert.NotEmpty(t, progressCalls)

	// Final progress should equal total
	lastCall := progressCalls[len(progressCalls)-1]
	assert.Equal(t, int64(len(data)), lastCall.current)
	assert.Equal(t, int64(len(data)), lastCall.total)
}

func TestProgressReader_NilCallback(t *testing.T) {
	data := []byte("hello world")
	reader := bytes.NewReader(data)

	pr := &progressReader{
		reader:     reader,
		total:      int64(len(data)),
		onProgress: nil, // No callback
	}

	result, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, data, result)
}

func TestProgressReader_SmallReads(t *testing.T) {
	data := []byte("hello world")
	reader := bytes.NewReader(data)

	var progressValues []int64
	pr := &progressReader{
		reader: reader,
		total:  int64(len(data)),
		onProgress: func(current, total int64) {
			progressValues = append(progressValues, current)
		},
	}

	// Read one byte at a time
	buf := make([]byte, 1)
	for {
		n, err := pr.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	// Progress should increase monotonically
	for i := 1; i < len(progressValues); i++ {
		assert.GreaterOrEqual(t, progressValues[i], progressValues[i-1])
	}
}

func TestAPIClient_SendsBearerTokenAndUnwrapsData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"status":"ok"}}`))
	}))
	defer srv.Close()

	api, err := NewAPIClientWithConfig("secret", srv.URL)
	require.NoError(t, err)

	resp, err := api.Get("/health")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.Data))
}

func TestAPIClient_NoKeyNoAuthorizationHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	api, _ := NewAPIClientWithConfig("", srv.URL)
	_, err := api.Get("/documents")
	require.NoError(t, err)
}

func TestAPIClient_ErrorCarriesStage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"extraction failed: malformed PDF","stage":"extraction"}`))
	}))
	defer srv.Close()

	api, _ := NewAPIClientWithConfig("", srv.URL)
	_, err := api.Post("/ask", map[string]string{"question": "q"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "extraction failed: malformed PDF", apiErr.Message)
	assert.Equal(t, "extraction", apiErr.Stage)
}

func TestAPIClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	api, _ := NewAPIClientWithConfig("", srv.URL)
	_, err := api.Get("/documents")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "bad gateway")
}

func TestAPIClient_UploadFilesStreamsEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("stream"))

		if assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			files := r.MultipartForm.File["file"]
			if assert.Len(t, files, 1) {
				assert.Equal(t, "report.pdf", files[0].Filename)
			}
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"event":"progress","filename":"report.pdf","completed":1,"total":1}` + "\n"))
		w.Write([]byte(`{"event":"done","filename":"report.pdf","result":{"document_id":"doc-1","num_chunks":3}}` + "\n"))
	}))
	defer srv.Close()

	api, _ := NewAPIClientWithConfig("", srv.URL)

	var events []UploadEvent
	err := api.UploadFiles([]string{path}, func(ev UploadEvent) { events = append(events, ev) })

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "progress", events[0].Event)
	assert.Equal(t, 1, events[0].Total)
	assert.Equal(t, "doc-1", events[1].Result.DocumentID)
}

func TestAPIClient_UploadFilesMissingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid multipart form"}`))
	}))
	defer srv.Close()

	api, _ := NewAPIClientWithConfig("", srv.URL)
	err := api.UploadFiles([]string{filepath.Join(t.TempDir(), "missing.pdf")}, func(UploadEvent) {})

	assert.Error(t, err)
}
