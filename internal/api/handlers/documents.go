package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/finknow/internal/api"
	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/cloo-solutions/finknow/internal/pagination"
	"github.com/cloo-solutions/finknow/internal/service"
	"github.com/go-chi/chi/v5"
)

const (
	uploadField        = "file"
	multipartMemoryMax = 32 << 20
	ndjsonContentType  = "application/x-ndjson"

	eventProgress = "progress"
	eventDone     = "done"
	eventError    = "error"
)

type IngestionService interface {
	Ingest(ctx context.Context, src domain.FileSource, progress domain.ProgressObserver) (*service.IngestResult, error)
}

type DocumentService interface {
	List(ctx context.Context, cursor string, limit int) (*pagination.PageResult[service.DocumentSummary], error)
	Get(ctx context.Context, documentID string) (*service.DocumentSummary, error)
	Delete(ctx context.Context, documentIDs []string) (*service.DeleteResult, error)
	Consistency(ctx context.Context) (*service.ConsistencyReport, error)
	DownloadURL(ctx context.Context, documentID string) (string, error)
}

type DocumentHandler struct {
	ingest IngestionService
	docs   DocumentService
}

func NewDocumentHandler(ingest IngestionService, docs DocumentService) *DocumentHandler {
	return &DocumentHandler{ingest: ingest, docs: docs}
}

type UploadResponse struct {
	Documents []*service.IngestResult `json:"documents"`
}

// IngestEvent is one line of a streamed upload.
type IngestEvent struct {
	Event     string                `json:"event"`
	Filename  string                `json:"filename"`
	Completed int                   `json:"completed,omitempty"`
	Total     int                   `json:"total,omitempty"`
	Result    *service.IngestResult `json:"result,omitempty"`
	Error     *api.ErrorResponse    `json:"error,omitempty"`
}

// UploadErrorResponse is returned when a file of a multi-file upload fails. Documents lists the files
// before it, which are already stored and cached.
type UploadErrorResponse struct {
	*api.ErrorResponse
	Filename  string                  `json:"filename"`
	Documents []*service.IngestResult `json:"documents"`
}

type DeleteDocumentsRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

type ConsistencyResponse struct {
	*service.ConsistencyReport
	Consistent bool `json:"consistent"`
}

type DownloadURLResponse struct {
	DownloadURL string `json:"download_url"`
}

// multipartSource reads one uploaded part.
type multipartSource struct {
	header *multipart.FileHeader
}

func (s multipartSource) Open(ctx context.Context) ([]byte, error) {
	f, err := s.header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s multipartSource) Name() string {
	return s.header.Filename
}

// Upload ingests every "file" part of a multipart form. With ?stream=true the response is NDJSON: progress
// events after each stored batch and one done or error event per file.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemoryMax); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File[uploadField]
	if len(files) == 0 {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}

	if stream, _ := strconv.ParseBool(r.URL.Query().Get("stream")); stream {
		h.uploadStream(w, r, files)
		return
	}

	resp := UploadResponse{Documents: make([]*service.IngestResult, 0, len(files))}
	created := false
	for _, fh := range files {
		result, err := h.ingest.Ingest(r.Context(), multipartSource{header: fh}, nil)
		if err != nil {
			api.JSON(w, api.DomainErrorToHTTP(err), UploadErrorResponse{
				ErrorResponse: api.NewErrorResponse(err),
				Filename:      domain.NormalizeFilename(fh.Filename),
				Documents:     resp.Documents,
			})
			return
		}
		created = created || !result.CacheHit
		resp.Documents = append(resp.Documents, result)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	api.Success(w, status, resp)
}

func (h *DocumentHandler) uploadStream(w http.ResponseWriter, r *http.Request, files []*multipart.FileHeader) {
	w.Header().Set("Content-Type", ndjsonContentType)
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	emit := func(ev IngestEvent) {
		if err := enc.Encode(ev); err != nil {
			log.Printf("upload: failed to write event: %v", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	for _, fh := range files {
		filename := domain.NormalizeFilename(fh.Filename)
		progress := domain.ProgressFunc(func(completed, total int) {
			emit(IngestEvent{Event: eventProgress, Filename: filename, Completed: completed, Total: total})
		})

		result, err := h.ingest.Ingest(r.Context(), multipartSource{header: fh}, progress)
		if err != nil {
			emit(IngestEvent{Event: eventError, Filename: filename, Error: api.NewErrorResponse(err)})
			continue
		}
		emit(IngestEvent{Event: eventDone, Filename: filename, Result: result})
	}
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	page, err := h.docs.List(r.Context(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, page)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, []string{chi.URLParam(r, "id")})
}

func (h *DocumentHandler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	var req DeleteDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.DocumentIDs) == 0 {
		api.Error(w, http.StatusBadRequest, "document_ids is required")
		return
	}

	h.delete(w, r, req.DocumentIDs)
}

func (h *DocumentHandler) delete(w http.ResponseWriter, r *http.Request, ids []string) {
	result, err := h.docs.Delete(r.Context(), ids)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, result)
}

func (h *DocumentHandler) Consistency(w http.ResponseWriter, r *http.Request) {
	report, err := h.docs.Consistency(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ConsistencyResponse{ConsistencyReport: report, Consistent: report.Consistent()})
}

func (h *DocumentHandler) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.docs.DownloadURL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DownloadURLResponse{DownloadURL: url})
}
