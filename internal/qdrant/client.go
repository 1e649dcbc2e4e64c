// Package qdrant stores chunk vectors in a Qdrant collection over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloo-solutions/finknow/internal/domain"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultScrollPageSize = 250
	DefaultMaxRetries     = 3

	documentIDField = "document_id"
	filenameField   = "filename"
)

// Config holds the connection settings of a Store.
type Config struct {
	URL            string
	APIKey         string
	Collection     string
	Dimensions     int
	Timeout        time.Duration
	ScrollPageSize int
	MaxRetries     int
}

// Store is a vector store backed by one Qdrant collection.
type Store struct {
	baseURL    string
	apiKey     string
	collection string
	dimensions int
	pageSize   int
	maxRetries int
	httpClient *http.Client
	newBackOff func() backoff.BackOff
}

// APIError is a non-2xx answer from Qdrant.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("qdrant returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("qdrant returned status %d: %s", e.StatusCode, e.Message)
}

// NewStore validates cfg and returns a Store. It does not contact the server.
func NewStore(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, domain.ConfigurationError("Qdrant URL not set", "FINKNOW_QDRANT_URL")
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, domain.ConfigurationError("collection name not set", "FINKNOW_COLLECTION")
	}
	if cfg.Dimensions <= 0 {
		return nil, domain.ConfigurationError("embedding dimensions must be positive", "FINKNOW_EMBEDDING_DIMENSIONS")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	pageSize := cfg.ScrollPageSize
	if pageSize <= 0 {
		pageSize = DefaultScrollPageSize
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Store{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		pageSize:   pageSize,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: timeout},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}, nil
}

// Collection returns the collection name.
func (s *Store) Collection() string {
	return s.collection
}

func (s *Store) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(s.collection) + suffix
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

// do sends a JSON request and decodes the "result" field into out. Transient failures are retried.
func (s *Store) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	attempt := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if s.apiKey != "" {
			req.Header.Set("api-key", s.apiKey)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			var netErr net.Error
			if errors.As(err, &netErr) {
				return err
			}
			return backoff.Permanent(err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		if out == nil {
			return nil
		}
		var env envelope
		if err := json.Unmarshal(respBody, &env); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		if err := json.Unmarshal(env.Result, out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode result: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.maxRetries)), ctx)
	return backoff.Retry(attempt, policy)
}

func errorMessage(body []byte) string {
	var env struct {
		Status struct {
			Error string `json:"error"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Status.Error != "" {
		return env.Status.Error
	}
	return strings.TrimSpace(string(body))
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func providerError(err error) error {
	return domain.ProviderError("vector store", err)
}
