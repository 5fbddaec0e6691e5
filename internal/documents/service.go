// Package documents ingests documents for enrichment and serves per-caller
// views of them.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bull/docintel/internal/cache"
	"github.com/bull/docintel/internal/errs"
	"github.com/bull/docintel/internal/storage"
)

// SummaryPlaceholder is shown until a summary exists.
const SummaryPlaceholder = "Summary not available yet."

// SupportedTypes are the accepted file extensions. Text extraction from pdf
// and docx happens before ingestion.
var SupportedTypes = []string{"pdf", "docx", "txt", "md"}

// Submitter admits a document for background enrichment.
type Submitter interface {
	Submit(ctx context.Context, docID, text string) error
}

// View is the cached, caller-facing rendering of a document.
type View struct {
	ID         string        `json:"id"`
	Filename   string        `json:"filename"`
	Summary    string        `json:"summary"`
	Status     string        `json:"status"`
	State      storage.State `json:"state"`
	Degraded   bool          `json:"degraded"`
	UploadedBy string        `json:"uploaded_by"`
	UploadedAt time.Time     `json:"uploaded_at"`
}

// Service implements ingestion and document reads.
type Service struct {
	store  storage.Store
	pool   Submitter
	cache  cache.Cache
	policy cache.Policy
	logger *slog.Logger
}

// NewService creates a Service. A nil cache disables caching.
func NewService(store storage.Store, pool Submitter, c cache.Cache, policy cache.Policy, logger *slog.Logger) *Service {
	if c == nil {
		c = cache.Null{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, pool: pool, cache: c, policy: policy, logger: logger}
}

// FileType returns the lower-case extension of filename, or an
// errs.ErrValidation error when it is not supported.
func FileType(filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !slices.Contains(SupportedTypes, ext) {
		return "", fmt.Errorf("%w: unsupported file format %q (supported: %s)",
			errs.ErrValidation, ext, strings.Join(SupportedTypes, ", "))
	}
	return ext, nil
}

// Ingest stores text as a pending document owned by owner and submits it for
// enrichment. When the pool rejects the submission the document is recorded
// as failed and the admission error is returned alongside it.
func (s *Service) Ingest(ctx context.Context, owner *storage.User, filename, text string) (*storage.Document, error) {
	if owner == nil || owner.ID == "" {
		return nil, fmt.Errorf("%w: owner is required", errs.ErrValidation)
	}
	if strings.TrimSpace(filename) == "" {
		return nil, fmt.Errorf("%w: filename is required", errs.ErrValidation)
	}
	fileType, err := FileType(filename)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty or unreadable document", errs.ErrValidation)
	}
	if _, err := s.store.GetUser(ctx, owner.ID); err != nil {
		return nil, fmt.Errorf("owner %s: %w", owner.ID, err)
	}

	doc := &storage.Document{
		UserID:   owner.ID,
		Filename: filename,
		FileType: fileType,
		Content:  text,
		Status:   storage.Pending(),
	}
	if _, err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	s.logger.Info("Document ingested", "document_id", doc.ID, "filename", filename, "chars", len(text))

	if err := s.pool.Submit(ctx, doc.ID, text); err != nil {
		status := storage.Failed(fmt.Sprintf("enrichment rejected: %v", err))
		if werr := s.store.UpdateStatusAndSummary(ctx, doc.ID, status, nil); werr != nil {
			s.logger.Error("Failed to record rejected enrichment", "document_id", doc.ID, "error", werr)
		} else {
			doc.Status = status
		}
		cache.Invalidate(ctx, s.cache, cache.DocumentChanged, doc.ID)
		return doc, fmt.Errorf("submit %s: %w", doc.ID, err)
	}

	// Reflect the accepted status without another round trip.
	if current, err := s.store.GetDocument(ctx, doc.ID); err == nil {
		doc.Status = current.Status
	}
	return doc, nil
}

// Get returns caller's view of document id. Only the owner and admins may
// read a document.
func (s *Service) Get(ctx context.Context, caller *storage.User, id string) (*View, error) {
	if caller == nil || caller.ID == "" {
		return nil, fmt.Errorf("%w: caller is required", errs.ErrValidation)
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: document id is required", errs.ErrValidation)
	}

	key := cache.DocumentViewKey(id, caller.ID)
	var view View
	if cache.GetJSON(ctx, s.cache, key, &view) {
		return &view, nil
	}

	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.UserID != caller.ID && !caller.IsAdmin() {
		return nil, fmt.Errorf("%w: you are not authorized to access this document", errs.ErrForbidden)
	}

	uploadedBy := caller.Username
	if doc.UserID != caller.ID {
		owner, err := s.store.GetUser(ctx, doc.UserID)
		switch {
		case err == nil:
			uploadedBy = owner.Username
		case errors.Is(err, errs.ErrNotFound):
			uploadedBy = ""
		default:
			return nil, fmt.Errorf("load owner: %w", err)
		}
	}

	summary := doc.Summary
	if summary == "" {
		summary = SummaryPlaceholder
	}
	view = View{
		ID:         doc.ID,
		Filename:   doc.Filename,
		Summary:    summary,
		Status:     doc.Status.String(),
		State:      doc.Status.State,
		Degraded:   doc.Status.Degraded(),
		UploadedBy: uploadedBy,
		UploadedAt: doc.UploadedAt,
	}
	cache.SetJSON(ctx, s.cache, key, view, s.policy.DocumentView)
	return &view, nil
}
