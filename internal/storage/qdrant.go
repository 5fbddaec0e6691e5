package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Qdrant collection layout. Documents carry their embedding as the optional
// named vector "embedding"; a document point without it is not searchable.
const (
	DocumentsCollection = "documents"
	UsersCollection     = "users"
	embeddingVector     = "embedding"
)

// QdrantStorage wraps the Qdrant client with connection management and health checks.
type QdrantStorage struct {
	client *qdrant.Client
	host   string
	port   int
}

var (
	_ Store  = (*QdrantStorage)(nil)
	_ Ranker = (*QdrantStorage)(nil)
)

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStorage(host string, port int) (*QdrantStorage, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	storage := &QdrantStorage{
		client: client,
		host:   host,
		port:   port,
	}

	ctx := context.Background()
	if err := storage.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}

	return storage, nil
}

// newRetryBackOff returns the backoff shared by health checks and writes:
// initial interval 500ms, max interval 10s, max elapsed 30s.
func newRetryBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error { return s.Health(ctx) }, newRetryBackOff(ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollections creates the users and documents collections with their
// payload indexes. Idempotent - safe to call multiple times.
func (s *QdrantStorage) EnsureCollections(ctx context.Context) error {
	existing, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	indexes := map[string]map[string]qdrant.FieldType{
		UsersCollection: {
			"username": qdrant.FieldType_FieldTypeKeyword,
		},
		DocumentsCollection: {
			"user_id":       qdrant.FieldType_FieldTypeKeyword,
			"has_embedding": qdrant.FieldType_FieldTypeBool,
		},
	}

	for _, name := range []string{UsersCollection, DocumentsCollection} {
		if slices.Contains(existing, name) {
			continue
		}
		// Named vectors let points exist without a vector: users never have
		// one, documents only once enrichment recorded an embedding.
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
				embeddingVector: {
					Size:     VectorDimension,
					Distance: qdrant.Distance_Cosine,
				},
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
		for field, fieldType := range indexes[name] {
			_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: name,
				FieldName:      field,
				FieldType:      fieldType.Enum(),
			})
			if err != nil {
				return fmt.Errorf("failed to create index for field %s: %w", field, err)
			}
		}
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *QdrantStorage) upsertWithRetry(ctx context.Context, collection string, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}
	return backoff.Retry(operation, newRetryBackOff(ctx))
}

func (s *QdrantStorage) setPayload(ctx context.Context, id string, payload map[string]any) error {
	_, err := s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: DocumentsCollection,
		Wait:           qdrant.PtrOf(true),
		Payload:        qdrant.NewValueMap(payload),
		PointsSelector: qdrant.NewPointsSelector(qdrant.NewIDUUID(id)),
	})
	return err
}

func (s *QdrantStorage) CreateUser(ctx context.Context, u *User) error {
	taken, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: UsersCollection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("username", u.Username)},
		},
		Limit: qdrant.PtrOf(uint32(1)),
	})
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if len(taken) > 0 {
		return fmt.Errorf("%w: %s", ErrUsernameTaken, u.Username)
	}

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(u.ID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"username": u.Username,
			"email":    u.Email,
			"role":     u.Role,
		}),
	}
	return s.upsertWithRetry(ctx, UsersCollection, []*qdrant.PointStruct{point})
}

func (s *QdrantStorage) GetUser(ctx context.Context, id string) (*User, error) {
	result, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: UsersCollection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrUserNotFound
	}
	payload := result[0].Payload
	return &User{
		ID:       id,
		Username: payload["username"].GetStringValue(),
		Email:    payload["email"].GetStringValue(),
		Role:     payload["role"].GetStringValue(),
	}, nil
}

func (s *QdrantStorage) CreateDocument(ctx context.Context, doc *Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if doc.Status.State == "" {
		doc.Status = Pending()
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(doc.ID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"user_id":           doc.UserID,
			"filename":          doc.Filename,
			"file_type":         doc.FileType,
			"content":           doc.Content,
			"summary":           doc.Summary,
			"status_state":      string(doc.Status.State),
			"status_diagnostic": doc.Status.Diagnostic,
			"uploaded_at":       doc.UploadedAt.Format(time.RFC3339),
			"has_embedding":     false,
		}),
	}
	if err := s.upsertWithRetry(ctx, DocumentsCollection, []*qdrant.PointStruct{point}); err != nil {
		return "", fmt.Errorf("failed to store document: %w", err)
	}
	return doc.ID, nil
}

func (s *QdrantStorage) getDocumentPoint(ctx context.Context, id string, withVector bool) (*qdrant.RetrievedPoint, error) {
	req := &qdrant.GetPoints{
		CollectionName: DocumentsCollection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if withVector {
		req.WithVectors = qdrant.NewWithVectorsInclude(embeddingVector)
	}
	result, err := s.client.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrDocumentNotFound
	}
	return result[0], nil
}

func (s *QdrantStorage) GetDocument(ctx context.Context, id string) (*Document, error) {
	point, err := s.getDocumentPoint(ctx, id, false)
	if err != nil {
		return nil, err
	}
	payload := point.Payload

	// Zero time if the payload predates the field or fails to parse
	uploadedAt, _ := time.Parse(time.RFC3339, payload["uploaded_at"].GetStringValue())

	return &Document{
		ID:       id,
		UserID:   payload["user_id"].GetStringValue(),
		Filename: payload["filename"].GetStringValue(),
		FileType: payload["file_type"].GetStringValue(),
		Content:  payload["content"].GetStringValue(),
		Summary:  payload["summary"].GetStringValue(),
		Status: Status{
			State:      State(payload["status_state"].GetStringValue()),
			Diagnostic: payload["status_diagnostic"].GetStringValue(),
		},
		UploadedAt: uploadedAt,
	}, nil
}

func (s *QdrantStorage) UpdateStatusAndSummary(ctx context.Context, id string, status Status, summary *string) error {
	if _, err := s.getDocumentPoint(ctx, id, false); err != nil {
		return err
	}
	payload := map[string]any{
		"status_state":      string(status.State),
		"status_diagnostic": status.Diagnostic,
	}
	if summary != nil {
		payload["summary"] = *summary
	}
	if err := s.setPayload(ctx, id, payload); err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return nil
}

func (s *QdrantStorage) CreateEmbedding(ctx context.Context, e *Embedding) error {
	if err := checkDimension(e.Vector); err != nil {
		return err
	}
	if _, err := s.getDocumentPoint(ctx, e.DocumentID, false); err != nil {
		return err
	}

	_, err := s.client.UpdateVectors(ctx, &qdrant.UpdatePointVectors{
		CollectionName: DocumentsCollection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointVectors{{
			Id: qdrant.NewIDUUID(e.DocumentID),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				embeddingVector: qdrant.NewVector(e.Vector...),
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err = s.setPayload(ctx, e.DocumentID, map[string]any{
		"has_embedding":   true,
		"embedding_model": e.ModelName,
		"embedded_at":     createdAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to mark embedding: %w", err)
	}
	return nil
}

func (s *QdrantStorage) GetEmbedding(ctx context.Context, documentID string) (*Embedding, error) {
	point, err := s.getDocumentPoint(ctx, documentID, true)
	if err != nil {
		return nil, err
	}
	if !point.Payload["has_embedding"].GetBoolValue() {
		return nil, ErrEmbeddingNotFound
	}
	createdAt, _ := time.Parse(time.RFC3339, point.Payload["embedded_at"].GetStringValue())
	return &Embedding{
		DocumentID: documentID,
		Vector:     pointVector(point.Vectors),
		ModelName:  point.Payload["embedding_model"].GetStringValue(),
		CreatedAt:  createdAt,
	}, nil
}

// DeleteEmbedding clears the has_embedding mark before removing the vector,
// so a failure between the two writes leaves the document unranked rather
// than ranked by a stale vector.
func (s *QdrantStorage) DeleteEmbedding(ctx context.Context, documentID string) (bool, error) {
	point, err := s.getDocumentPoint(ctx, documentID, false)
	if errors.Is(err, ErrDocumentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !point.Payload["has_embedding"].GetBoolValue() {
		return false, nil
	}

	if err := s.setPayload(ctx, documentID, map[string]any{"has_embedding": false}); err != nil {
		return false, fmt.Errorf("failed to unmark embedding: %w", err)
	}
	_, err = s.client.DeleteVectors(ctx, &qdrant.DeletePointVectors{
		CollectionName: DocumentsCollection,
		Wait:           qdrant.PtrOf(true),
		PointsSelector: qdrant.NewPointsSelector(qdrant.NewIDUUID(documentID)),
		Vectors:        &qdrant.VectorsSelector{Names: []string{embeddingVector}},
	})
	if err != nil {
		return true, fmt.Errorf("failed to delete embedding: %w", err)
	}
	return true, nil
}

// pointVector extracts the named embedding vector from a retrieved point.
func pointVector(v *qdrant.VectorsOutput) []float32 {
	named := v.GetVectors().GetVectors()
	if named == nil {
		return nil
	}
	return named[embeddingVector].GetData()
}

// ListEmbeddingsWithOwner scrolls every document that has an embedding.
func (s *QdrantStorage) ListEmbeddingsWithOwner(ctx context.Context) ([]EmbeddedDocument, error) {
	var rows []EmbeddedDocument
	var offset *qdrant.PointId
	batchSize := uint32(100)
	usernames := make(map[string]string)

	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: DocumentsCollection,
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatchBool("has_embedding", true)},
			},
			Limit:       qdrant.PtrOf(batchSize),
			Offset:      offset,
			WithPayload: qdrant.NewWithPayloadInclude("user_id", "filename", "summary"),
			WithVectors: qdrant.NewWithVectorsInclude(embeddingVector),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll embeddings: %w", err)
		}

		for _, point := range results {
			username, err := s.username(ctx, point.Payload["user_id"].GetStringValue(), usernames)
			if err != nil {
				return nil, err
			}
			rows = append(rows, EmbeddedDocument{
				DocumentID: point.Id.GetUuid(),
				Vector:     pointVector(point.Vectors),
				Filename:   point.Payload["filename"].GetStringValue(),
				Summary:    point.Payload["summary"].GetStringValue(),
				Username:   username,
			})
		}

		// Stop if we got fewer results than batch size (no more pages)
		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}

	slices.SortFunc(rows, func(a, b EmbeddedDocument) int {
		return strings.Compare(a.DocumentID, b.DocumentID)
	})
	return rows, nil
}

// rankOverfetch is the initial number of extra points fetched past limit
// so ties straddling the cut can be ordered by ID.
const rankOverfetch = 10

// RankBySimilarity runs a native cosine query. Qdrant scores cosine
// collections with the similarity itself but does not order ties, so the
// query is widened until every point tied with the last kept entry has been
// fetched, then sorted and cut to limit.
func (s *QdrantStorage) RankBySimilarity(ctx context.Context, query []float32, limit int) ([]ScoredDocument, error) {
	if err := checkDimension(query); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []ScoredDocument{}, nil
	}

	var results []*qdrant.ScoredPoint
	for fetch := limit + rankOverfetch; ; fetch *= 2 {
		var err error
		results, err = s.queryEmbedded(ctx, query, fetch)
		if err != nil {
			return nil, err
		}
		slices.SortStableFunc(results, compareScored)
		if len(results) < fetch || results[len(results)-1].Score < results[limit-1].Score {
			break
		}
	}
	if len(results) > limit {
		results = results[:limit]
	}

	usernames := make(map[string]string)
	scored := make([]ScoredDocument, 0, len(results))
	for _, result := range results {
		username, err := s.username(ctx, result.Payload["user_id"].GetStringValue(), usernames)
		if err != nil {
			return nil, err
		}
		scored = append(scored, ScoredDocument{
			EmbeddedDocument: EmbeddedDocument{
				DocumentID: result.Id.GetUuid(),
				Filename:   result.Payload["filename"].GetStringValue(),
				Summary:    result.Payload["summary"].GetStringValue(),
				Username:   username,
			},
			Similarity: float64(result.Score), // Qdrant returns float32
		})
	}
	return scored, nil
}

// queryEmbedded returns the fetch best points among documents marked as
// embedded. A vector written without its has_embedding mark, or one whose
// mark was already cleared, is never ranked.
func (s *QdrantStorage) queryEmbedded(ctx context.Context, query []float32, fetch int) ([]*qdrant.ScoredPoint, error) {
	vectorName := embeddingVector
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: DocumentsCollection,
		Query:          qdrant.NewQuery(query...),
		Using:          &vectorName,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchBool("has_embedding", true)},
		},
		Limit:       qdrant.PtrOf(uint64(fetch)),
		WithPayload: qdrant.NewWithPayloadInclude("user_id", "filename", "summary"),
		WithVectors: qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rank documents: %w", err)
	}
	return results, nil
}

// compareScored orders by descending score, ties by ascending ID.
func compareScored(a, b *qdrant.ScoredPoint) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	default:
		return strings.Compare(a.Id.GetUuid(), b.Id.GetUuid())
	}
}

// username resolves and memoises an owner's username for one listing.
func (s *QdrantStorage) username(ctx context.Context, userID string, seen map[string]string) (string, error) {
	if name, ok := seen[userID]; ok {
		return name, nil
	}
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			seen[userID] = ""
			return "", nil
		}
		return "", err
	}
	seen[userID] = u.Username
	return u.Username, nil
}
