// Package errs defines the error taxonomy shared by every docintel component.
//
// Components wrap these sentinels with context (fmt.Errorf("%w: ...")) and
// callers branch on them with errors.Is rather than on message text.
package errs

import "errors"

var (
	// ErrValidation indicates empty or malformed caller input. Not retryable.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates an unknown document, user or embedding.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the caller may not access the entity.
	ErrForbidden = errors.New("forbidden")

	// ErrDependencyUnavailable indicates the store, cache or model backend
	// could not be reached or constructed.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrModelFailure indicates the summarizer or embedder returned an error.
	ErrModelFailure = errors.New("model failure")
)
