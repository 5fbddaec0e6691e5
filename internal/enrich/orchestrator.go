// Package enrich derives the summary and embedding of a document and records
// the outcome in its status.
//
// Each document has at most one attempt in flight. An attempt either ends
// completed (possibly degraded, with a usable summary but no embedding) or
// failed; its outcome is always written to the store, never returned to
// the submitter.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bull/docintel/internal/cache"
	"github.com/bull/docintel/internal/model"
	"github.com/bull/docintel/internal/storage"
)

// AbortedDiagnostic is recorded for queued jobs dropped by a shutdown deadline.
const AbortedDiagnostic = "enrichment aborted during shutdown"

// TextSummarizer produces the summary of a whole document.
type TextSummarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Orchestrator runs enrichment attempts against the store and keeps the
// cache consistent with every write.
type Orchestrator struct {
	store      storage.Store
	summarizer TextSummarizer
	embedder   model.Embedder
	cache      cache.Cache
	logger     *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewOrchestrator creates an Orchestrator. A nil cache disables invalidation.
func NewOrchestrator(
	store storage.Store,
	summarizer TextSummarizer,
	embedder model.Embedder,
	c cache.Cache,
	logger *slog.Logger,
) *Orchestrator {
	if c == nil {
		c = cache.Null{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:      store,
		summarizer: summarizer,
		embedder:   embedder,
		cache:      c,
		logger:     logger,
		inFlight:   make(map[string]struct{}),
	}
}

// Enrich runs one attempt synchronously and returns the terminal status it
// recorded. The returned error covers admission only (ErrInFlight or an
// unknown document); enrichment failures are reported through the status.
func (o *Orchestrator) Enrich(ctx context.Context, docID, text string) (storage.Status, error) {
	if !o.claim(docID) {
		return storage.Status{}, ErrInFlight
	}
	defer o.release(docID)

	if err := o.accept(ctx, docID); err != nil {
		return storage.Status{}, err
	}
	return o.attempt(ctx, docID, text), nil
}

// InFlight reports whether docID currently has an attempt claimed.
func (o *Orchestrator) InFlight(docID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inFlight[docID]
	return ok
}

func (o *Orchestrator) claim(docID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.inFlight[docID]; ok {
		return false
	}
	o.inFlight[docID] = struct{}{}
	return true
}

func (o *Orchestrator) release(docID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, docID)
}

// accept marks a first attempt as processing. A document that already
// reached a terminal status keeps it visible until the new attempt replaces it.
func (o *Orchestrator) accept(ctx context.Context, docID string) error {
	doc, err := o.store.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("accept %s: %w", docID, err)
	}
	if doc.Status.IsTerminal() {
		return nil
	}
	if err := o.store.UpdateStatusAndSummary(ctx, docID, storage.Processing(), nil); err != nil {
		return fmt.Errorf("accept %s: %w", docID, err)
	}
	cache.Invalidate(ctx, o.cache, cache.DocumentChanged, docID)
	return nil
}

// attempt summarizes, embeds and records the outcome. Store writes and cache
// invalidation run on a context detached from ctx so a cancelled caller
// still leaves a terminal status behind.
func (o *Orchestrator) attempt(ctx context.Context, docID, text string) storage.Status {
	start := time.Now()
	logger := o.logger.With("attempt_id", uuid.New().String(), "document_id", docID)
	logger.Info("Starting enrichment", "chars", len(text))
	writeCtx := context.WithoutCancel(ctx)

	summary, err := o.summarizer.Summarize(ctx, text)
	if err != nil {
		status := storage.Failed(fmt.Sprintf("summarization failed: %v", err))
		o.record(writeCtx, logger, docID, status, nil)
		logger.Warn("Enrichment failed", "status", status.String(), "duration", time.Since(start))
		return status
	}

	vector, embedErr := o.embedder.Embed(ctx, text)
	if embedErr == nil && len(vector) != storage.VectorDimension {
		embedErr = fmt.Errorf("%w: got %d dimensions, expected %d",
			storage.ErrDimensionMismatch, len(vector), storage.VectorDimension)
	}

	status := storage.Completed()
	if embedErr != nil {
		status = storage.CompletedDegraded(fmt.Sprintf("embedding failed: %v", embedErr))
	}
	if !o.record(writeCtx, logger, docID, status, &summary) {
		return storage.Failed("store write failed")
	}

	if embedErr == nil {
		err := o.store.CreateEmbedding(writeCtx, &storage.Embedding{
			DocumentID: docID,
			Vector:     vector,
			ModelName:  o.embedder.ModelName(),
		})
		if err != nil {
			status = storage.CompletedDegraded(fmt.Sprintf("embedding save failed: %v", err))
			o.record(writeCtx, logger, docID, status, nil)
		} else {
			cache.Invalidate(writeCtx, o.cache, cache.EmbeddingWritten, docID)
		}
	}

	logger.Info("Enrichment finished",
		"status", status.String(),
		"summary_words", len(strings.Fields(summary)),
		"duration", time.Since(start),
	)
	return status
}

// record writes status (and summary when non-nil) and invalidates the
// document's cached views. Any outcome other than a clean completion also
// drops the embedding of an earlier attempt, so search never ranks a
// document by text it no longer reports. It reports whether the status
// write succeeded.
func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, docID string, status storage.Status, summary *string) bool {
	if status.State != storage.StateCompleted || status.Degraded() {
		o.dropEmbedding(ctx, logger, docID)
	}
	if err := o.store.UpdateStatusAndSummary(ctx, docID, status, summary); err != nil {
		logger.Error("Failed to record enrichment status", "status", status.String(), "error", err)
		return false
	}
	cache.Invalidate(ctx, o.cache, cache.DocumentChanged, docID)
	return true
}

func (o *Orchestrator) dropEmbedding(ctx context.Context, logger *slog.Logger, docID string) {
	removed, err := o.store.DeleteEmbedding(ctx, docID)
	if err != nil {
		logger.Error("Failed to drop stale embedding", "error", err)
		return
	}
	if removed {
		logger.Info("Dropped stale embedding")
		cache.Invalidate(ctx, o.cache, cache.EmbeddingWritten, docID)
	}
}

// abort records a queued job that will not run.
func (o *Orchestrator) abort(ctx context.Context, docID string) {
	logger := o.logger.With("document_id", docID)
	o.record(ctx, logger, docID, storage.Failed(AbortedDiagnostic), nil)
	logger.Warn("Enrichment aborted", "reason", AbortedDiagnostic)
}
