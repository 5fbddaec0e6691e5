package storage

import (
	"errors"
	"fmt"

	"github.com/bull/docintel/internal/errs"
)

var (
	ErrDocumentNotFound  = fmt.Errorf("document %w", errs.ErrNotFound)
	ErrUserNotFound      = fmt.Errorf("user %w", errs.ErrNotFound)
	ErrEmbeddingNotFound = fmt.Errorf("embedding %w", errs.ErrNotFound)
	ErrStoreUnreachable  = fmt.Errorf("store %w", errs.ErrDependencyUnavailable)
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrUsernameTaken     = errors.New("username already exists")
)
