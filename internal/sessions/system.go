package sessions

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/refine/pkg/pagination"
)

// System is the session persistence contract.
type System interface {
	// ListForDocument returns the document's sessions, most recently updated first.
	ListForDocument(ctx context.Context, documentID string) ([]Session, error)
	// Search pages session summaries across documents.
	Search(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Summary], error)
	// Find returns the session with id or ErrNotFound.
	Find(ctx context.Context, id uuid.UUID) (*Session, error)
	// Create persists a new, empty session.
	Create(ctx context.Context, cmd CreateCommand) (*Session, error)
	// Update overwrites the stored session and refreshes s.UpdatedAt.
	// Returns ErrNotFound when the session does not exist.
	Update(ctx context.Context, s *Session) error
	// Delete removes the session or returns ErrNotFound.
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteAllForDocument removes every session of the document and
	// returns how many were removed.
	DeleteAllForDocument(ctx context.Context, documentID string) (int, error)
}
