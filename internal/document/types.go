// Package document persists uploaded documents and their embedded chunks in
// PostgreSQL with pgvector, and answers scoped similarity searches over them.
package document

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Scope controls who can see a document's chunks during retrieval.
type Scope string

const (
	// ScopeOrganization makes a document visible to everyone in one organization.
	ScopeOrganization Scope = "organization"

	// ScopeUser makes a document visible only to its uploader.
	ScopeUser Scope = "user"

	// ScopeConversation ties a document to a single conversation.
	ScopeConversation Scope = "conversation"
)

// ValidScope reports whether s is one of the known scopes.
func ValidScope(s Scope) bool {
	switch s {
	case ScopeOrganization, ScopeUser, ScopeConversation:
		return true
	}
	return false
}

// Status is the indexing lifecycle state of a document.
type Status string

const (
	// StatusProcessing means ingestion has started but not finished.
	StatusProcessing Status = "processing"

	// StatusCompleted means every chunk is embedded and stored.
	StatusCompleted Status = "completed"

	// StatusFailed means ingestion aborted; IndexingError holds the reason.
	StatusFailed Status = "failed"
)

// VectorDimension is the embedding dimensionality the schema is built for.
const VectorDimension = 768

// RoleAdmin is the role name that may delete organization-scoped documents.
const RoleAdmin = "ADMIN"

var (
	// ErrNotFound is returned when no visible document matches the request.
	ErrNotFound = errors.New("document not found")

	// ErrForbidden is returned when the caller may see a document but not
	// perform the requested operation on it.
	ErrForbidden = errors.New("operation not permitted")

	// ErrInvalidScope is returned for scope values outside the known set.
	ErrInvalidScope = errors.New("invalid document scope")
)

// Document is one uploaded file and its indexing state.
type Document struct {
	ID             uuid.UUID  `json:"id"`
	Filename       string     `json:"filename"`
	FileType       string     `json:"file_type"`
	FileSize       int64      `json:"file_size"`
	FilePath       string     `json:"-"`
	PageCount      int        `json:"page_count,omitempty"`
	Scope          Scope      `json:"scope"`
	UserID         string     `json:"user_id,omitempty"`
	OrganizationID string     `json:"organization_id,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty"`
	IndexingStatus Status     `json:"indexing_status"`
	IndexingError  string     `json:"indexing_error,omitempty"`
	ChunkCount     int        `json:"chunk_count"`
	UploadedAt     time.Time  `json:"uploaded_at"`
	IndexedAt      *time.Time `json:"indexed_at,omitempty"`
}

// CanDelete reports whether the given caller may delete this document.
// User- and conversation-scoped documents belong to their uploader; deleting
// an organization-scoped document requires the admin role.
func (d *Document) CanDelete(userID, role string) bool {
	switch d.Scope {
	case ScopeOrganization:
		return strings.EqualFold(role, RoleAdmin)
	case ScopeUser, ScopeConversation:
		return d.UserID != "" && d.UserID == userID
	}
	return false
}

// Chunk is one embedded slice of a document's text.
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Index      int
	Content    string
	CharCount  int
	Embedding  []float32
	Metadata   map[string]any
}

// Match is one chunk returned by a similarity search, with its source
// document's identity attached.
type Match struct {
	DocumentID uuid.UUID `json:"document_id"`
	Filename   string    `json:"filename"`
	Scope      Scope     `json:"scope"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Similarity float64   `json:"similarity"`
}
