// Package sessions persists working sessions: one named pass over a document
// holding its field selection, stage configs, results, and iteration history.
//
// Two backends implement System: a Postgres repository for durable storage
// and a go-cache memory store for tests and ephemeral CLI runs.
package sessions

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/refine/internal/stages"
)

// Session is the persisted record of one working pass over a document.
type Session struct {
	ID               uuid.UUID                      `json:"id"`
	DocumentID       string                         `json:"document_id"`
	DocumentLabel    string                         `json:"document_label"`
	Name             *string                        `json:"name"`
	FieldSelection   []string                       `json:"field_selection"`
	OriginalSnapshot map[string]string              `json:"original_snapshot"`
	Configs          map[stages.Stage]stages.Config `json:"configs"`
	StageResults     map[stages.Stage]stages.Result `json:"stage_results"`
	IterationHistory []stages.Result                `json:"iteration_history"`
	IterationCount   int                            `json:"iteration_count"`
	Guidance         string                         `json:"guidance"`
	CreatedAt        time.Time                      `json:"created_at"`
	UpdatedAt        time.Time                      `json:"updated_at"`
}

// Summary is the cached projection of a Session kept in application state.
type Summary struct {
	ID             uuid.UUID `json:"id"`
	DocumentID     string    `json:"document_id"`
	Name           *string   `json:"name"`
	IterationCount int       `json:"iteration_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Summary projects s.
func (s *Session) Summary() Summary {
	return Summary{
		ID:             s.ID,
		DocumentID:     s.DocumentID,
		Name:           s.Name,
		IterationCount: s.IterationCount,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// DisplayName returns the session name, or its creation time when unnamed.
func (s Summary) DisplayName() string {
	if s.Name != nil && *s.Name != "" {
		return *s.Name
	}
	return "Session " + s.CreatedAt.Local().Format("2006-01-02 15:04")
}

// Summaries projects every session in order.
func Summaries(list []Session) []Summary {
	out := make([]Summary, len(list))
	for i := range list {
		out[i] = list[i].Summary()
	}
	return out
}

// CreateCommand carries what a new session starts from.
type CreateCommand struct {
	DocumentID       string
	DocumentLabel    string
	FieldSelection   []string
	OriginalSnapshot map[string]string
	Configs          map[stages.Stage]stages.Config
}

// Filters narrows Search results. Nil fields are ignored.
type Filters struct {
	DocumentID   *string
	UpdatedSince *time.Time
}
