// Package telemetry traces pipeline operations with Sentry. Every helper is a no-op when Sentry is not
// initialized.
package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	serverName   = "finknow"
	flushTimeout = 5 * time.Second
)

// Transactions that are never sampled.
var unsampled = map[string]bool{
	"GET /health": true,
}

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init initializes Sentry with tracing enabled and returns a function that flushes pending events.
// An empty DSN leaves Sentry disabled.
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate <= 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:           cfg.DSN,
		Environment:   cfg.Environment,
		EnableTracing: true,
		Debug:         cfg.Debug,
		ServerName:    serverName,
		TracesSampler: sentry.TracesSampler(func(ctx sentry.SamplingContext) float64 {
			if unsampled[ctx.Span.Name] {
				return 0
			}
			// Child spans follow the decision of their transaction.
			var root sentry.SpanID
			if ctx.Span.ParentSpanID != root {
				if ctx.Span.Sampled.Bool() {
					return 1
				}
				return 0
			}
			return cfg.TracesSampleRate
		}),
	})
	if err != nil {
		log.Printf("sentry: failed to initialize (continuing without tracing): %v", err)
		return func() {}, nil
	}

	log.Printf("sentry: tracing initialized (environment: %s, sample_rate: %.2f)", cfg.Environment, cfg.TracesSampleRate)
	return func() { sentry.Flush(flushTimeout) }, nil
}

// SpanAttributes are tagged on a span when it starts.
type SpanAttributes struct {
	DocumentID string
	Collection string
	Stage      string
	Operation  string
}

// Span wraps a sentry span. The zero value is usable.
type Span struct {
	inner *sentry.Span
	stage string
}

// StartSpan starts a child of the span in ctx, or a new transaction when there is none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var inner *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		inner = parent.StartChild(name)
	} else {
		inner = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}

	s := &Span{inner: inner, stage: attrs.Stage}
	s.SetTag("document_id", attrs.DocumentID)
	s.SetTag("collection", attrs.Collection)
	s.SetTag("stage", attrs.Stage)
	if attrs.Operation != "" {
		inner.SetData("operation", attrs.Operation)
	}

	return inner.Context(), s
}

// End finishes the span.
func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetTag tags the span once a value is known mid-operation, such as a freshly assigned document id.
func (s *Span) SetTag(key, value string) {
	if s.inner != nil && value != "" {
		s.inner.SetTag(key, value)
	}
}

// EnterStage records that the operation moved on to stage, as a tag and a breadcrumb.
func (s *Span) EnterStage(ctx context.Context, stage, detail string) {
	s.stage = stage
	s.SetTag("stage", stage)
	AddBreadcrumb(ctx, "pipeline", stage+" "+detail)
}

// SetError marks the span as failed and reports err tagged with the current stage.
func (s *Span) SetError(err error) {
	if s.inner == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError

	hub := sentry.GetHubFromContext(s.inner.Context())
	if hub == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		if s.stage != "" {
			scope.SetTag("stage", s.stage)
		}
		hub.CaptureException(err)
	})
}

// CaptureError reports an error that does not fail the surrounding operation.
func CaptureError(ctx context.Context, err error) {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

// AddBreadcrumb adds a breadcrumb to the current scope.
func AddBreadcrumb(ctx context.Context, category, message string) {
	breadcrumb := &sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.AddBreadcrumb(breadcrumb, nil)
		return
	}
	sentry.AddBreadcrumb(breadcrumb)
}
