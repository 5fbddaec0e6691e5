package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type userRow struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Username  string    `gorm:"type:text;not null;uniqueIndex"`
	Email     string    `gorm:"type:text"`
	Role      string    `gorm:"type:text;not null;default:user"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (userRow) TableName() string { return "users" }

type documentRow struct {
	ID               string    `gorm:"type:uuid;primaryKey"`
	UserID           string    `gorm:"type:uuid;not null;index"`
	Filename         string    `gorm:"type:text;not null"`
	FileType         string    `gorm:"type:text;not null"`
	Content          string    `gorm:"type:text"`
	Summary          string    `gorm:"type:text"`
	StatusState      string    `gorm:"type:text;not null;default:pending"`
	StatusDiagnostic string    `gorm:"type:varchar(500)"`
	UploadedAt       time.Time `gorm:"not null"`
}

func (documentRow) TableName() string { return "documents" }

type embeddingRow struct {
	DocumentID string          `gorm:"type:uuid;primaryKey"`
	Embedding  pgvector.Vector `gorm:"type:vector(384);not null"`
	ModelName  string          `gorm:"type:text"`
	CreatedAt  time.Time       `gorm:"autoCreateTime"`

	Document documentRow `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
}

func (embeddingRow) TableName() string { return "embeddings" }

// PostgresStorage keeps users, documents and embeddings in PostgreSQL with
// the pgvector extension.
type PostgresStorage struct {
	db *gorm.DB
}

var (
	_ Store  = (*PostgresStorage)(nil)
	_ Ranker = (*PostgresStorage)(nil)
)

// NewPostgresStorage opens the database, waits for it to answer and migrates
// the schema.
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}

	s := &PostgresStorage{db: db}
	if err := backoff.Retry(func() error { return s.Health(ctx) }, newRetryBackOff(ctx)); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}

	if err := s.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStorage) migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if err := db.AutoMigrate(&userRow{}, &documentRow{}, &embeddingRow{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Health pings the underlying connection pool.
func (s *PostgresStorage) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStorage) CreateUser(ctx context.Context, u *User) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&userRow{}).
		Where("LOWER(username) = ?", strings.ToLower(u.Username)).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", ErrUsernameTaken, u.Username)
	}

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	row := userRow{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, id string) (*User, error) {
	var row userRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &User{ID: row.ID, Username: row.Username, Email: row.Email, Role: row.Role}, nil
}

func (s *PostgresStorage) CreateDocument(ctx context.Context, doc *Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if doc.Status.State == "" {
		doc.Status = Pending()
	}
	row := documentRow{
		ID:               doc.ID,
		UserID:           doc.UserID,
		Filename:         doc.Filename,
		FileType:         doc.FileType,
		Content:          doc.Content,
		Summary:          doc.Summary,
		StatusState:      string(doc.Status.State),
		StatusDiagnostic: doc.Status.Diagnostic,
		UploadedAt:       doc.UploadedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to store document: %w", err)
	}
	return doc.ID, nil
}

func (s *PostgresStorage) GetDocument(ctx context.Context, id string) (*Document, error) {
	var row documentRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &Document{
		ID:         row.ID,
		UserID:     row.UserID,
		Filename:   row.Filename,
		FileType:   row.FileType,
		Content:    row.Content,
		Summary:    row.Summary,
		Status:     Status{State: State(row.StatusState), Diagnostic: row.StatusDiagnostic},
		UploadedAt: row.UploadedAt,
	}, nil
}

func (s *PostgresStorage) UpdateStatusAndSummary(ctx context.Context, id string, status Status, summary *string) error {
	updates := map[string]any{
		"status_state":      string(status.State),
		"status_diagnostic": status.Diagnostic,
	}
	if summary != nil {
		updates["summary"] = *summary
	}
	result := s.db.WithContext(ctx).Model(&documentRow{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update document status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *PostgresStorage) CreateEmbedding(ctx context.Context, e *Embedding) error {
	if err := checkDimension(e.Vector); err != nil {
		return err
	}
	if _, err := s.GetDocument(ctx, e.DocumentID); err != nil {
		return err
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	row := embeddingRow{
		DocumentID: e.DocumentID,
		Embedding:  pgvector.NewVector(e.Vector),
		ModelName:  e.ModelName,
		CreatedAt:  createdAt,
	}
	err := s.db.WithContext(ctx).Omit("Document").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"embedding", "model_name", "created_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetEmbedding(ctx context.Context, documentID string) (*Embedding, error) {
	var row embeddingRow
	err := s.db.WithContext(ctx).First(&row, "document_id = ?", documentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEmbeddingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	return &Embedding{
		DocumentID: row.DocumentID,
		Vector:     row.Embedding.Slice(),
		ModelName:  row.ModelName,
		CreatedAt:  row.CreatedAt,
	}, nil
}

func (s *PostgresStorage) DeleteEmbedding(ctx context.Context, documentID string) (bool, error) {
	result := s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&embeddingRow{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete embedding: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

type embeddedRow struct {
	DocumentID string
	Embedding  pgvector.Vector
	Filename   string
	Summary    string
	Username   string
	Similarity float64
}

func (r embeddedRow) toEmbedded() EmbeddedDocument {
	return EmbeddedDocument{
		DocumentID: r.DocumentID,
		Vector:     r.Embedding.Slice(),
		Filename:   r.Filename,
		Summary:    r.Summary,
		Username:   r.Username,
	}
}

func (s *PostgresStorage) ListEmbeddingsWithOwner(ctx context.Context) ([]EmbeddedDocument, error) {
	var rows []embeddedRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT e.document_id, e.embedding, d.filename, d.summary, COALESCE(u.username, '') AS username
		FROM embeddings e
		JOIN documents d ON d.id = e.document_id
		LEFT JOIN users u ON u.id = d.user_id
		ORDER BY e.document_id`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	out := make([]EmbeddedDocument, len(rows))
	for i, r := range rows {
		out[i] = r.toEmbedded()
	}
	return out, nil
}

// RankBySimilarity orders by pgvector's cosine distance operator.
func (s *PostgresStorage) RankBySimilarity(ctx context.Context, query []float32, limit int) ([]ScoredDocument, error) {
	if err := checkDimension(query); err != nil {
		return nil, err
	}
	literal := VectorLiteral(query)

	var rows []embeddedRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT e.document_id, d.filename, d.summary, COALESCE(u.username, '') AS username,
		       1 - (e.embedding <=> CAST(? AS vector)) AS similarity
		FROM embeddings e
		JOIN documents d ON d.id = e.document_id
		LEFT JOIN users u ON u.id = d.user_id
		ORDER BY e.embedding <=> CAST(? AS vector), e.document_id
		LIMIT ?`, literal, literal, limit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to rank documents: %w", err)
	}

	out := make([]ScoredDocument, len(rows))
	for i, r := range rows {
		out[i] = ScoredDocument{EmbeddedDocument: r.toEmbedded(), Similarity: r.Similarity}
	}
	return out, nil
}

// VectorLiteral renders a vector in pgvector's text form, e.g. "[0.1,0.2]".
func VectorLiteral(v []float32) string {
	return pgvector.NewVector(v).String()
}
