// Package indexer bulk-ingests documents from a repository source.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bull/docintel/internal/github"
	"github.com/bull/docintel/internal/markdown"
	"github.com/bull/docintel/internal/storage"
)

// Source lists and fetches documents. *github.Fetcher implements it.
type Source interface {
	GetLatestCommitSHA(ctx context.Context) (string, error)
	ListDocs(ctx context.Context) ([]string, error)
	FetchDoc(ctx context.Context, relativePath string) (*github.FetchedDoc, error)
}

// Ingester stores a document and submits it for enrichment.
type Ingester interface {
	Ingest(ctx context.Context, owner *storage.User, filename, text string) (*storage.Document, error)
}

// Queue reports free enrichment queue capacity. *enrich.Pool implements it.
type Queue interface {
	Free() int
}

// IndexResult contains statistics about an indexing operation.
type IndexResult struct {
	TotalDocs      int
	SuccessfulDocs int
	DocumentIDs    []string
	FailedDocs     []FailedDoc
	CommitSHA      string
	Duration       time.Duration
}

// FailedDoc represents a document that failed to ingest.
type FailedDoc struct {
	Path   string
	Reason string
}

// Pipeline fetches every document from a Source and ingests it on behalf of
// one owner. Enrichment runs in the background; the pipeline only waits for
// queue space.
type Pipeline struct {
	source    Source
	extractor *markdown.Extractor
	ingester  Ingester
	queue     Queue
	logger    *slog.Logger
}

// NewPipeline creates a new indexing pipeline. queue may be nil, in which
// case submissions are never throttled.
func NewPipeline(source Source, ingester Ingester, queue Queue, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source:    source,
		extractor: markdown.NewExtractor(),
		ingester:  ingester,
		queue:     queue,
		logger:    logger,
	}
}

// IndexAll ingests every document the source lists. Per-document failures
// are collected in the result; only listing failures abort the run.
func (p *Pipeline) IndexAll(ctx context.Context, owner *storage.User) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}

	commitSHA, err := p.source.GetLatestCommitSHA(ctx)
	if err != nil {
		return nil, fmt.Errorf("get commit SHA: %w", err)
	}
	result.CommitSHA = commitSHA
	p.logger.Info("Starting ingestion", "commit", commitSHA)

	paths, err := p.source.ListDocs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list docs: %w", err)
	}
	result.TotalDocs = len(paths)
	p.logger.Info("Found documents", "count", len(paths))

	for _, docPath := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		id, err := p.processDocument(ctx, owner, docPath)
		if err != nil {
			p.logger.Warn("Failed to ingest document", "path", docPath, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{Path: docPath, Reason: err.Error()})
			if id != "" {
				result.DocumentIDs = append(result.DocumentIDs, id)
			}
			continue
		}
		result.SuccessfulDocs++
		result.DocumentIDs = append(result.DocumentIDs, id)
	}

	result.Duration = time.Since(start)
	p.logger.Info("Ingestion complete",
		"successful", result.SuccessfulDocs,
		"failed", len(result.FailedDocs),
		"duration", result.Duration,
	)
	return result, nil
}

// processDocument returns the stored document ID, which is set even when
// the document was stored but enrichment was rejected.
func (p *Pipeline) processDocument(ctx context.Context, owner *storage.User, docPath string) (string, error) {
	fetched, err := p.source.FetchDoc(ctx, docPath)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}

	text, err := p.plainText(docPath, fetched.Content)
	if err != nil {
		return "", err
	}

	if err := p.waitForQueue(ctx); err != nil {
		return "", fmt.Errorf("wait for enrichment queue: %w", err)
	}

	doc, err := p.ingester.Ingest(ctx, owner, docPath, text)
	if err != nil {
		if doc != nil {
			return doc.ID, err
		}
		return "", err
	}
	p.logger.Debug("Ingested document", "path", docPath, "document_id", doc.ID, "sha", fetched.SHA)
	return doc.ID, nil
}

func (p *Pipeline) plainText(docPath, content string) (string, error) {
	if strings.ToLower(path.Ext(docPath)) != ".md" {
		return content, nil
	}
	doc, err := p.extractor.Extract([]byte(content))
	if err != nil {
		return "", fmt.Errorf("extract markdown: %w", err)
	}
	return doc.Text, nil
}

var errQueueFull = errors.New("enrichment queue full")

// waitForQueue blocks with exponential backoff until the queue has room.
func (p *Pipeline) waitForQueue(ctx context.Context) error {
	if p.queue == nil {
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 0 // until ctx is done

	return backoff.Retry(func() error {
		if p.queue.Free() > 0 {
			return nil
		}
		return errQueueFull
	}, backoff.WithContext(bo, ctx))
}
