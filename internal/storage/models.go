package storage

import (
	"fmt"
	"time"
)

// VectorDimension is the embedding size every backend stores (all-MiniLM-L6-v2 class models).
const VectorDimension = 384

// MaxDiagnosticLength bounds the diagnostic carried by a failed or degraded status.
const MaxDiagnosticLength = 500

// Roles a User can hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User owns documents. Credentials live with the external auth service.
type User struct {
	ID       string
	Username string
	Email    string
	Role     string
}

// IsAdmin reports whether the user may read every document.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// State is the enrichment lifecycle position of a document.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Status is the tagged enrichment result of a document.
// A completed status with a diagnostic is a degraded completion: the summary
// is usable but no embedding exists, so the document is not searchable.
type Status struct {
	State      State  `json:"state"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Pending is the status every document is created with.
func Pending() Status { return Status{State: StatePending} }

// Processing marks an accepted enrichment attempt.
func Processing() Status { return Status{State: StateProcessing} }

// Completed marks a fully enriched, search-eligible document.
func Completed() Status { return Status{State: StateCompleted} }

// CompletedDegraded marks a document whose summary succeeded but whose embedding did not.
func CompletedDegraded(diagnostic string) Status {
	return Status{State: StateCompleted, Diagnostic: boundDiagnostic(diagnostic)}
}

// Failed marks a terminal enrichment failure.
func Failed(diagnostic string) Status {
	return Status{State: StateFailed, Diagnostic: boundDiagnostic(diagnostic)}
}

// IsTerminal reports whether the status ends an enrichment attempt.
func (s Status) IsTerminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}

// Degraded reports a completion without an embedding.
func (s Status) Degraded() bool {
	return s.State == StateCompleted && s.Diagnostic != ""
}

// String renders the status the way callers display it.
func (s Status) String() string {
	switch {
	case s.Degraded():
		return fmt.Sprintf("%s (%s)", s.State, s.Diagnostic)
	case s.State == StateFailed && s.Diagnostic != "":
		return fmt.Sprintf("%s: %s", s.State, s.Diagnostic)
	default:
		return string(s.State)
	}
}

// boundDiagnostic truncates to MaxDiagnosticLength runes, ending with an ellipsis.
func boundDiagnostic(d string) string {
	runes := []rune(d)
	if len(runes) <= MaxDiagnosticLength {
		return d
	}
	return string(runes[:MaxDiagnosticLength-3]) + "..."
}

// Document is an ingested text and its enrichment outcome.
type Document struct {
	ID         string    // UUID
	UserID     string    // Owning User.ID
	Filename   string    // Original upload name: "contract.pdf"
	FileType   string    // Lower-case extension: "pdf", "docx", "txt", "md"
	Content    string    // Extracted raw text
	Summary    string    // Present once completed
	Status     Status    // Enrichment lifecycle
	UploadedAt time.Time // Ingestion time
}

// Embedding is the single vector recorded for a document.
// Its presence makes the document search-eligible.
type Embedding struct {
	DocumentID string
	Vector     []float32 // VectorDimension components
	ModelName  string
	CreatedAt  time.Time
}

// EmbeddedDocument is a ranking candidate: a document joined with its
// embedding and its owner's username.
type EmbeddedDocument struct {
	DocumentID string
	Vector     []float32
	Filename   string
	Summary    string
	Username   string
}

// ScoredDocument is a ranking candidate with its similarity to a query.
type ScoredDocument struct {
	EmbeddedDocument
	Similarity float64
}
