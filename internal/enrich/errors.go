package enrich

import "errors"

var (
	// ErrInFlight means another attempt for the same document has not finished.
	ErrInFlight = errors.New("enrichment already in flight for document")
	// ErrQueueFull means the pool is saturated and the request was rejected.
	ErrQueueFull = errors.New("enrichment queue full")
	// ErrPoolClosed means shutdown has begun and no new work is admitted.
	ErrPoolClosed = errors.New("enrichment pool closed")
)
