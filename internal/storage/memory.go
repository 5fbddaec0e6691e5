package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process memory. It backs tests and
// single-process deployments where durability is not required.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]User
	documents  map[string]Document
	embeddings map[string]Embedding
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]User),
		documents:  make(map[string]Document),
		embeddings: make(map[string]Embedding),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return fmt.Errorf("%w: %s", ErrUsernameTaken, u.Username)
		}
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *MemoryStore) CreateDocument(ctx context.Context, doc *Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if doc.Status.State == "" {
		doc.Status = Pending()
	}
	s.documents[doc.ID] = *doc
	return doc.ID, nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return &doc, nil
}

func (s *MemoryStore) UpdateStatusAndSummary(ctx context.Context, id string, status Status, summary *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Status = status
	if summary != nil {
		doc.Summary = *summary
	}
	s.documents[id] = doc
	return nil
}

func (s *MemoryStore) CreateEmbedding(ctx context.Context, e *Embedding) error {
	if err := checkDimension(e.Vector); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[e.DocumentID]; !ok {
		return ErrDocumentNotFound
	}
	stored := *e
	stored.Vector = slices.Clone(e.Vector)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.embeddings[e.DocumentID] = stored
	return nil
}

func (s *MemoryStore) GetEmbedding(ctx context.Context, documentID string) (*Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.embeddings[documentID]
	if !ok {
		return nil, ErrEmbeddingNotFound
	}
	e.Vector = slices.Clone(e.Vector)
	return &e, nil
}

func (s *MemoryStore) DeleteEmbedding(ctx context.Context, documentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.embeddings[documentID]
	delete(s.embeddings, documentID)
	return ok, nil
}

// ListEmbeddingsWithOwner returns candidates ordered by document ID.
func (s *MemoryStore) ListEmbeddingsWithOwner(ctx context.Context) ([]EmbeddedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]EmbeddedDocument, 0, len(s.embeddings))
	for docID, e := range s.embeddings {
		doc, ok := s.documents[docID]
		if !ok {
			continue
		}
		rows = append(rows, EmbeddedDocument{
			DocumentID: docID,
			Vector:     slices.Clone(e.Vector),
			Filename:   doc.Filename,
			Summary:    doc.Summary,
			Username:   s.users[doc.UserID].Username,
		})
	}
	slices.SortFunc(rows, func(a, b EmbeddedDocument) int {
		return strings.Compare(a.DocumentID, b.DocumentID)
	})
	return rows, nil
}

func (s *MemoryStore) Health(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
