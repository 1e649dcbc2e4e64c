//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloo-solutions/finknow/internal/api/handlers"
	"github.com/cloo-solutions/finknow/internal/api/middleware"
	"github.com/cloo-solutions/finknow/internal/cache"
	"github.com/cloo-solutions/finknow/internal/extract"
	"github.com/cloo-solutions/finknow/internal/memstore"
	"github.com/cloo-solutions/finknow/internal/openai"
	"github.com/cloo-solutions/finknow/internal/repository"
	"github.com/cloo-solutions/finknow/internal/server"
	"github.com/cloo-solutions/finknow/internal/service"
	"github.com/cloo-solutions/finknow/internal/storage"
	"github.com/cloo-solutions/finknow/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
)

const (
	testAPIKey     = "finknow-e2e-key"
	testDimensions = 64
	testCollection = "e2e_chunks"

	// CannedReply is what the fake chat endpoint answers with.
	CannedReply = "Revenue grew by twelve percent."
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	RustFSC    *testutil.RustFSContainer
	Pool       *pgxpool.Pool
	OpenAI     *FakeOpenAI
	CachePath  string
	ServerURL  string
	BinaryDir  string
	APIKey     string
	HTTPClient *http.Client

	server *http.Server
}

// EnvOptions selects the backends of an E2E environment.
type EnvOptions struct {
	// Pgvector stores chunks in a PostgreSQL container. Otherwise the in-memory store is used.
	Pgvector bool
	// Archive keeps uploaded PDFs in a RustFS container.
	Archive bool
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T, opts EnvOptions) *E2ETestEnv {
	ctx := context.Background()

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		OpenAI:     NewFakeOpenAI(testDimensions),
		CachePath:  filepath.Join(t.TempDir(), "processed_cache.json"),
		APIKey:     testAPIKey,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}

	var store service.VectorStore
	if opts.Pgvector {
		env.PostgresC = testutil.NewPostgresContainer(ctx, t)
		env.Pool = testutil.NewTestPool(ctx, t, env.PostgresC, "../../migrations")

		chunkStore, err := repository.NewChunkStore(env.Pool, testCollection, testDimensions, 50)
		if err != nil {
			env.Cleanup()
			t.Fatalf("failed to create chunk store: %v", err)
		}
		store = chunkStore
	} else {
		store = memstore.New(testDimensions)
	}
	if err := store.EnsureCollection(ctx); err != nil {
		env.Cleanup()
		t.Fatalf("failed to prepare collection: %v", err)
	}

	var archive *storage.DocumentArchive
	if opts.Archive {
		env.RustFSC = testutil.NewRustFSContainer(ctx, t)

		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        env.RustFSC.Endpoint(),
			Region:          "us-east-1",
			AccessKeyID:     testutil.RustFSAccessKey,
			SecretAccessKey: testutil.RustFSSecretKey,
			Bucket:          "e2e-documents",
			UsePathStyle:    true,
		})
		if err != nil {
			env.Cleanup()
			t.Fatalf("failed to create S3 client: %v", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			env.Cleanup()
			t.Fatalf("failed to create bucket: %v", err)
		}
		archive = storage.NewDocumentArchive(s3Client)
	}

	port, err := getFreePort()
	if err != nil {
		env.Cleanup()
		t.Fatalf("failed to get free port: %v", err)
	}

	env.ServerURL, env.server = startServer(t, env, store, archive, port)

	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.server.Shutdown(ctx)
	}
	if e.OpenAI != nil {
		e.OpenAI.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

func startServer(t *testing.T, env *E2ETestEnv, store service.VectorStore, archive *storage.DocumentArchive, port int) (string, *http.Server) {
	client := openai.NewClientWithConfig(openai.Config{
		APIKey:              "sk-e2e",
		BaseURL:             env.OpenAI.URL(),
		EmbeddingModel:      goopenai.SmallEmbedding3,
		EmbeddingDimensions: testDimensions,
		ChatModel:           "gpt-4o-mini",
		Timeout:             10 * time.Second,
		MaxRetries:          1,
	})

	chunker, err := service.NewChunker(service.ChunkConfig{ChunkSize: 200, ChunkOverlap: 20})
	if err != nil {
		t.Fatalf("failed to create chunker: %v", err)
	}
	embedder := service.NewEmbeddingGateway(client, service.EmbeddingConfig{
		BatchSize:     4,
		QueryPrefix:   "query: ",
		PassagePrefix: "passage: ",
	})

	contentCache := cache.Load(env.CachePath)

	ingestion := service.NewIngestionService(extract.Auto{}, chunker, embedder, store, contentCache, &service.DefaultUUIDGenerator{})
	var documents *service.DocumentService
	if archive != nil {
		ingestion.WithArchive(archive)
		documents = service.NewDocumentService(store, contentCache, archive)
	} else {
		documents = service.NewDocumentService(store, contentCache, nil)
	}
	retrieval := service.NewRetrievalService(embedder, store, 3)
	answers := service.NewAnswerService(client, retrieval, 256)

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:   middleware.StaticKey{Key: testAPIKey},
		DocumentHandler: handlers.NewDocumentHandler(ingestion, documents),
		QueryHandler:    handlers.NewQueryHandler(retrieval, answers),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, srv
}

// BuildBinaries builds the finknow and finknowd binaries
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "finknow-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"finknowd", "finknow"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

// RunFinknow runs the finknow CLI against the test server
func (e *E2ETestEnv) RunFinknow(workDir string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "finknow"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("FINKNOW_API_KEY=%s", e.APIKey),
		fmt.Sprintf("FINKNOW_API_URL=%s", e.ServerURL),
		// Keep the user's global config out of the test.
		fmt.Sprintf("XDG_CONFIG_HOME=%s", workDir),
		fmt.Sprintf("HOME=%s", workDir),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode    int             `json:"-"`
	Data          json.RawMessage `json:"data"`
	Error         string          `json:"error,omitempty"`
	Stage         string          `json:"stage,omitempty"`
	DocumentID    string          `json:"document_id,omitempty"`
	BatchesStored int             `json:"batches_stored,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, authToken)
}

// Post performs a POST request with a JSON body
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body, authToken)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path, nil, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(e.Ctx, method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return e.send(req, authToken)
}

// Upload posts files as multipart "file" parts. stream selects the NDJSON progress response.
func (e *E2ETestEnv) Upload(files map[string][]byte, stream bool, authToken string) (*http.Response, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := form.CreateFormFile("file", name)
		if err != nil {
			return nil, fmt.Errorf("failed to create form part: %w", err)
		}
		if _, err := part.Write(content); err != nil {
			return nil, fmt.Errorf("failed to write form part: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	path := "/documents"
	if stream {
		path += "?stream=true"
	}
	req, err := http.NewRequestWithContext(e.Ctx, http.MethodPost, e.ServerURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	return e.HTTPClient.Do(req)
}

// UploadPDF uploads a single file and decodes the envelope.
func (e *E2ETestEnv) UploadPDF(name string, content []byte) (*APIResponse, error) {
	resp, err := e.Upload(map[string][]byte{name: content}, false, e.APIKey)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeResponse(resp)
}

func (e *E2ETestEnv) send(req *http.Request, authToken string) (*APIResponse, error) {
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp)
}

func decodeResponse(resp *http.Response) (*APIResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response (status %d): %s", resp.StatusCode, body)
	}
	return apiResp, nil
}

// DownloadFile fetches a presigned URL.
func (e *E2ETestEnv) DownloadFile(downloadURL string) ([]byte, error) {
	resp, err := e.HTTPClient.Get(downloadURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// FakeOpenAI serves the embeddings and chat completion endpoints. Embeddings are hashed bags of words,
// so texts sharing words score higher against each other.
type FakeOpenAI struct {
	server     *httptest.Server
	dimensions int

	embeddingCalls atomic.Int64
	embeddedTexts  atomic.Int64
	chatCalls      atomic.Int64
}

// NewFakeOpenAI starts the fake API.
func NewFakeOpenAI(dimensions int) *FakeOpenAI {
	f := &FakeOpenAI{dimensions: dimensions}

	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", f.handleEmbeddings)
	mux.HandleFunc("/chat/completions", f.handleChat)
	f.server = httptest.NewServer(mux)

	return f
}

func (f *FakeOpenAI) URL() string { return f.server.URL }

func (f *FakeOpenAI) Close() { f.server.Close() }

// EmbeddingCalls counts embedding requests.
func (f *FakeOpenAI) EmbeddingCalls() int64 { return f.embeddingCalls.Load() }

// EmbeddedTexts counts texts embedded across all requests.
func (f *FakeOpenAI) EmbeddedTexts() int64 { return f.embeddedTexts.Load() }

// ChatCalls counts chat completion requests.
func (f *FakeOpenAI) ChatCalls() int64 { return f.chatCalls.Load() }

func (f *FakeOpenAI) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	f.embeddingCalls.Add(1)

	var req struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.embeddedTexts.Add(int64(len(req.Input)))

	type embedding struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}
	data := make([]embedding, len(req.Input))
	for i, text := range req.Input {
		data[i] = embedding{Object: "embedding", Embedding: f.vector(text), Index: i}
	}

	writeJSON(w, map[string]interface{}{
		"object": "list",
		"data":   data,
		"model":  req.Model,
		"usage":  map[string]int{"prompt_tokens": 0, "total_tokens": 0},
	})
}

func (f *FakeOpenAI) handleChat(w http.ResponseWriter, r *http.Request) {
	f.chatCalls.Add(1)

	writeJSON(w, map[string]interface{}{
		"id":      "chatcmpl-e2e",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": CannedReply},
			"finish_reason": "stop",
		}},
	})
}

func (f *FakeOpenAI) vector(text string) []float32 {
	v := make([]float32, f.dimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,:;!?()\"'")
		if word == "" || word == "query" || word == "passage" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		v[h.Sum32()%uint32(f.dimensions)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
