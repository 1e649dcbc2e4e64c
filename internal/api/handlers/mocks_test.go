package handlers

import (
	"context"

	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/cloo-solutions/finknow/internal/pagination"
	"github.com/cloo-solutions/finknow/internal/service"
	"github.com/stretchr/testify/mock"
)

// MockIngestionService reads the source so tests see the uploaded bytes, then reports progress steps
// configured through the optional third return value.
type MockIngestionService struct {
	mock.Mock
}

func (m *MockIngestionService) Ingest(ctx context.Context, src domain.FileSource, progress domain.ProgressObserver) (*service.IngestResult, error) {
	data, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	args := m.Called(ctx, src.Name(), string(data))
	if steps, ok := args.Get(2).([][2]int); ok && progress != nil {
		for _, s := range steps {
			progress.OnProgress(s[0], s[1])
		}
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestResult), args.Error(1)
}

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) List(ctx context.Context, cursor string, limit int) (*pagination.PageResult[service.DocumentSummary], error) {
	args := m.Called(ctx, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.PageResult[service.DocumentSummary]), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, documentID string) (*service.DocumentSummary, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentSummary), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, documentIDs []string) (*service.DeleteResult, error) {
	args := m.Called(ctx, documentIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DeleteResult), args.Error(1)
}

func (m *MockDocumentService) Consistency(ctx context.Context) (*service.ConsistencyReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ConsistencyReport), args.Error(1)
}

func (m *MockDocumentService) DownloadURL(ctx context.Context, documentID string) (string, error) {
	args := m.Called(ctx, documentID)
	return args.String(0), args.Error(1)
}

type MockRetrievalService struct {
	mock.Mock
}

func (m *MockRetrievalService) Retrieve(ctx context.Context, input service.RetrieveInput) ([]domain.ScoredChunk, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ScoredChunk), args.Error(1)
}

type MockAnswerService struct {
	mock.Mock
}

func (m *MockAnswerService) Ask(ctx context.Context, input service.AskInput) (*service.AskResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AskResult), args.Error(1)
}

func (m *MockAnswerService) Chat(ctx context.Context, message string) (string, error) {
	args := m.Called(ctx, message)
	return args.String(0), args.Error(1)
}
