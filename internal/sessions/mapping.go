package sessions

import (
	"encoding/json"
	"fmt"

	"github.com/JaimeStill/refine/internal/stages"
	"github.com/JaimeStill/refine/pkg/query"
	"github.com/JaimeStill/refine/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "sessions", "s").
	Project("id", "ID").
	Project("document_id", "DocumentID").
	Project("document_label", "DocumentLabel").
	Project("name", "Name").
	Project("field_selection", "FieldSelection").
	Project("original_snapshot", "OriginalSnapshot").
	Project("configs", "Configs").
	Project("stage_results", "StageResults").
	Project("iteration_history", "IterationHistory").
	Project("iteration_count", "IterationCount").
	Project("guidance", "Guidance").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var summaryProjection = query.
	NewProjectionMap("public", "sessions", "s").
	Project("id", "ID").
	Project("document_id", "DocumentID").
	Project("name", "Name").
	Project("iteration_count", "IterationCount").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "UpdatedAt",
	Descending: true,
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("DocumentID", f.DocumentID).
		WhereSince("UpdatedAt", f.UpdatedSince)
}

// documentColumns holds the jsonb-encoded parts of a session.
type documentColumns struct {
	selection []byte
	snapshot  []byte
	configs   []byte
	results   []byte
	history   []byte
}

func encodeColumns(s *Session) (documentColumns, error) {
	var (
		cols documentColumns
		err  error
	)

	if cols.selection, err = marshalOr(s.FieldSelection, "[]"); err != nil {
		return cols, fmt.Errorf("encode field_selection: %w", err)
	}
	if cols.snapshot, err = marshalOr(s.OriginalSnapshot, "{}"); err != nil {
		return cols, fmt.Errorf("encode original_snapshot: %w", err)
	}
	if cols.configs, err = marshalOr(s.Configs, "{}"); err != nil {
		return cols, fmt.Errorf("encode configs: %w", err)
	}
	if cols.results, err = marshalOr(s.StageResults, "{}"); err != nil {
		return cols, fmt.Errorf("encode stage_results: %w", err)
	}
	if cols.history, err = marshalOr(s.IterationHistory, "[]"); err != nil {
		return cols, fmt.Errorf("encode iteration_history: %w", err)
	}

	return cols, nil
}

func marshalOr[T any](v T, empty string) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return []byte(empty), nil
	}
	return data, nil
}

func scanSession(sc repository.Scanner) (Session, error) {
	var (
		s    Session
		cols documentColumns
	)

	err := sc.Scan(
		&s.ID,
		&s.DocumentID,
		&s.DocumentLabel,
		&s.Name,
		&cols.selection,
		&cols.snapshot,
		&cols.configs,
		&cols.results,
		&cols.history,
		&s.IterationCount,
		&s.Guidance,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return s, err
	}

	if err := decodeColumns(&s, cols); err != nil {
		return s, fmt.Errorf("decode session %s: %w", s.ID, err)
	}

	return s, nil
}

func decodeColumns(s *Session, cols documentColumns) error {
	if err := json.Unmarshal(cols.selection, &s.FieldSelection); err != nil {
		return err
	}
	if err := json.Unmarshal(cols.snapshot, &s.OriginalSnapshot); err != nil {
		return err
	}
	if err := json.Unmarshal(cols.configs, &s.Configs); err != nil {
		return err
	}
	if err := json.Unmarshal(cols.results, &s.StageResults); err != nil {
		return err
	}
	if err := json.Unmarshal(cols.history, &s.IterationHistory); err != nil {
		return err
	}

	if s.StageResults == nil {
		s.StageResults = make(map[stages.Stage]stages.Result)
	}
	return nil
}

func scanSummary(sc repository.Scanner) (Summary, error) {
	var s Summary
	err := sc.Scan(
		&s.ID,
		&s.DocumentID,
		&s.Name,
		&s.IterationCount,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}
