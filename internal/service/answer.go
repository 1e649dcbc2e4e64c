package service

import (
	"context"
	"strings"

	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/cloo-solutions/finknow/internal/telemetry"
)

const (
	// DefaultMaxTokens bounds the length of generated answers.
	DefaultMaxTokens = 512

	// NotFoundAnswer is what the model is told to say when the context lacks the answer.
	NotFoundAnswer = "The answer is not found in the document."

	// NoContextMessage is returned without calling the model when retrieval finds nothing.
	NoContextMessage = "No relevant context found."

	contextDelimiter = "\n\n---\n\n"

	answerSystemPrompt = "You are a helpful assistant with access to financial documents. " +
		"Use the context below to answer the user's question. " +
		"If the answer is not in the context, say \"" + NotFoundAnswer + "\""

	chatSystemPrompt = "You are a helpful assistant."
)

// Retriever ranks stored chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, input RetrieveInput) ([]domain.ScoredChunk, error)
}

// AskInput is a question answered over retrieved context.
type AskInput struct {
	Question    string
	TopK        int
	DocumentIDs []string
}

// AskResult carries the answer and the chunks it was generated from.
type AskResult struct {
	Answer string               `json:"answer"`
	Found  bool                 `json:"found"`
	Chunks []domain.ScoredChunk `json:"chunks"`
}

// AnswerService generates answers with a hosted language model.
type AnswerService struct {
	llm       CompletionClient
	retriever Retriever
	maxTokens int
}

// NewAnswerService creates a new AnswerService instance
func NewAnswerService(llm CompletionClient, retriever Retriever, maxTokens int) *AnswerService {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &AnswerService{llm: llm, retriever: retriever, maxTokens: maxTokens}
}

// BuildContext joins chunk texts in ranked order.
func BuildContext(chunks []domain.ScoredChunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, contextDelimiter)
}

// BuildUserPrompt renders the context and question into the user message.
func BuildUserPrompt(contextText, question string) string {
	return "Context:\n" + contextText + "\n\nQuestion: " + question + "\nAnswer:"
}

// Answer asks the model to answer question from chunks. Without chunks the model is not called.
func (s *AnswerService) Answer(ctx context.Context, question string, chunks []domain.ScoredChunk) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", domain.ErrEmptyQuestion
	}
	if len(chunks) == 0 {
		return "", domain.ErrNoRelevantContext
	}

	ctx, span := telemetry.StartSpan(ctx, "AnswerService.Answer", telemetry.SpanAttributes{
		Operation: "answer",
	})
	defer span.End()

	answer, err := s.llm.Complete(ctx, answerSystemPrompt, BuildUserPrompt(BuildContext(chunks), question), s.maxTokens)
	if err != nil {
		span.SetError(err)
		return "", domain.NewStageError(domain.StageGenerating, err)
	}
	return answer, nil
}

// Ask retrieves context for the question and answers from it. When retrieval finds nothing the result
// has Found=false and the model is not called.
func (s *AnswerService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	chunks, err := s.retriever.Retrieve(ctx, RetrieveInput{
		Question:    input.Question,
		TopK:        input.TopK,
		DocumentIDs: input.DocumentIDs,
	})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return &AskResult{Answer: NoContextMessage, Found: false, Chunks: chunks}, nil
	}

	answer, err := s.Answer(ctx, input.Question, chunks)
	if err != nil {
		return nil, err
	}
	return &AskResult{Answer: answer, Found: true, Chunks: chunks}, nil
}

// Chat talks to the model directly, without any document context.
func (s *AnswerService) Chat(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", domain.ErrEmptyQuestion
	}

	ctx, span := telemetry.StartSpan(ctx, "AnswerService.Chat", telemetry.SpanAttributes{
		Operation: "chat",
	})
	defer span.End()

	reply, err := s.llm.Complete(ctx, chatSystemPrompt, message, s.maxTokens)
	if err != nil {
		span.SetError(err)
		return "", domain.NewStageError(domain.StageGenerating, err)
	}
	return reply, nil
}
