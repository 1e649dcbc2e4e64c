package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cloo-solutions/finknow/internal/api"
	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/cloo-solutions/finknow/internal/service"
)

type RetrievalService interface {
	Retrieve(ctx context.Context, input service.RetrieveInput) ([]domain.ScoredChunk, error)
}

type AnswerService interface {
	Ask(ctx context.Context, input service.AskInput) (*service.AskResult, error)
	Chat(ctx context.Context, message string) (string, error)
}

type QueryHandler struct {
	retrieval RetrievalService
	answers   AnswerService
}

func NewQueryHandler(retrieval RetrievalService, answers AnswerService) *QueryHandler {
	return &QueryHandler{retrieval: retrieval, answers: answers}
}

type QueryRequest struct {
	Question    string   `json:"question"`
	TopK        int      `json:"top_k,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

type RetrieveResponse struct {
	Chunks []domain.ScoredChunk `json:"chunks"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (*QueryRequest, bool) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if strings.TrimSpace(req.Question) == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return nil, false
	}
	if req.TopK < 0 {
		api.Error(w, http.StatusBadRequest, "top_k must not be negative")
		return nil, false
	}
	return &req, true
}

// Retrieve returns the ranked chunks for a question without generating an answer.
func (h *QueryHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	chunks, err := h.retrieval.Retrieve(r.Context(), service.RetrieveInput{
		Question:    req.Question,
		TopK:        req.TopK,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, RetrieveResponse{Chunks: chunks})
}

// Ask answers a question from retrieved document context.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := h.answers.Ask(r.Context(), service.AskInput{
		Question:    req.Question,
		TopK:        req.TopK,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, result)
}

// Chat sends a message straight to the language model.
func (h *QueryHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := h.answers.Chat(r.Context(), req.Message)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ChatResponse{Reply: reply})
}
