package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/judging-portal/internal/observability"
	"github.com/noah-isme/judging-portal/internal/realtime"
	"github.com/noah-isme/judging-portal/internal/repository"
	"github.com/noah-isme/judging-portal/internal/store"
)

var (
	// ErrInvalidKey is returned for keys that were not produced by key derivation.
	ErrInvalidKey = errors.New("invalid store key")
	// ErrInvalidDocument is returned when the body is not a JSON object.
	ErrInvalidDocument = errors.New("document must be a json object")
)

// DocumentService reads and writes whole judging documents.
type DocumentService interface {
	Get(ctx context.Context, key string) (repository.StoredDocument, error)
	Put(ctx context.Context, key string, body []byte, expected string) (repository.StoredDocument, error)
}

type documentService struct {
	repo    repository.DocumentRepository
	feed    ChangeFeed
	backend string
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewDocumentService constructs the document service. feed may be nil.
func NewDocumentService(repo repository.DocumentRepository, feed ChangeFeed, backend string, logger zerolog.Logger) DocumentService {
	return &documentService{
		repo:    repo,
		feed:    feed,
		backend: backend,
		logger:  logger.With().Str("component", "document_service").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/judging-portal/internal/service/document"),
	}
}

func (s *documentService) Get(ctx context.Context, key string) (repository.StoredDocument, error) {
	if !store.ValidKey(key) {
		return repository.StoredDocument{}, ErrInvalidKey
	}

	spanCtx, span := s.tracer.Start(ctx, "documents.get", trace.WithAttributes(attribute.String("store.key", key)))
	defer span.End()

	doc, err := s.repo.Get(spanCtx, key)
	switch {
	case err == nil:
		observability.DocumentReads().WithLabelValues(s.backend, "found").Inc()
	case errors.Is(err, repository.ErrDocumentNotFound):
		observability.DocumentReads().WithLabelValues(s.backend, "missing").Inc()
	default:
		span.RecordError(err)
		observability.DocumentReads().WithLabelValues(s.backend, "error").Inc()
	}

	return doc, err
}

func (s *documentService) Put(ctx context.Context, key string, body []byte, expected string) (repository.StoredDocument, error) {
	if !store.ValidKey(key) {
		return repository.StoredDocument{}, ErrInvalidKey
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil || probe == nil {
		return repository.StoredDocument{}, ErrInvalidDocument
	}

	attrs := []attribute.KeyValue{
		attribute.String("store.key", key),
		attribute.String("store.expected_version", expected),
		attribute.Int("store.body_bytes", len(body)),
	}
	spanCtx, span := s.tracer.Start(ctx, "documents.put", trace.WithAttributes(attrs...))
	defer span.End()

	doc, err := s.repo.Put(spanCtx, key, body, expected)
	if err != nil {
		outcome := "error"
		if errors.Is(err, repository.ErrVersionMismatch) {
			outcome = "conflict"
		} else {
			span.RecordError(err)
		}
		observability.DocumentWrites().WithLabelValues(s.backend, outcome).Inc()
		return repository.StoredDocument{}, fmt.Errorf("put %s: %w", key, err)
	}

	observability.DocumentWrites().WithLabelValues(s.backend, "ok").Inc()
	s.logger.Debug().Str("key", key).Int64("version", doc.Version).Msg("document stored")

	if s.feed != nil {
		s.feed.Publish(spanCtx, realtime.Change{
			Key:       key,
			Version:   doc.VersionString(),
			UpdatedAt: doc.UpdatedAt.UnixMilli(),
		})
	}

	return doc, nil
}

