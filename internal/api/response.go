package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/finknow/internal/domain"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse represents an error API response. Stage is set when a pipeline stage failed.
type ErrorResponse struct {
	Error         string `json:"error"`
	Stage         string `json:"stage,omitempty"`
	DocumentID    string `json:"document_id,omitempty"`
	BatchesStored int    `json:"batches_stored,omitempty"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DomainErrorToHTTP maps domain errors to HTTP status codes. The first DomainError in the chain decides;
// stage errors without one are classified by stage.
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return http.StatusGatewayTimeout
		case isStage(err, domain.StageExtracting):
			return http.StatusUnprocessableEntity
		default:
			return http.StatusInternalServerError
		}
	}

	switch domainErr.Code {
	case domain.ErrCodeValidation:
		return http.StatusBadRequest
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrCodeProvider:
		return http.StatusBadGateway
	case domain.ErrCodeConfiguration, domain.ErrCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse builds the error body for err, including stage details when a pipeline stage failed.
func NewErrorResponse(err error) *ErrorResponse {
	resp := &ErrorResponse{Error: err.Error()}
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		resp.Stage = string(stageErr.Stage)
		resp.DocumentID = stageErr.DocumentID
		resp.BatchesStored = stageErr.BatchesStored
	}
	return resp
}

// HandleError writes an appropriate error response based on the error type
func HandleError(w http.ResponseWriter, err error) {
	JSON(w, DomainErrorToHTTP(err), NewErrorResponse(err))
}

func isStage(err error, stage domain.Stage) bool {
	var stageErr *domain.StageError
	return errors.As(err, &stageErr) && stageErr.Stage == stage
}
