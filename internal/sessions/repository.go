package sessions

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/refine/pkg/pagination"
	"github.com/JaimeStill/refine/pkg/query"
	"github.com/JaimeStill/refine/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a Postgres-backed session repository implementing System.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "sessions"),
		pagination: pagination,
	}
}

func (r *repo) ListForDocument(ctx context.Context, documentID string) ([]Session, error) {
	q, args := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("DocumentID", documentID).
		Build()

	list, err := repository.QueryMany(ctx, r.db, q, args, scanSession)
	if err != nil {
		return nil, fmt.Errorf("query sessions for %s: %w", documentID, err)
	}
	return list, nil
}

func (r *repo) Search(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Summary], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(summaryProjection, defaultSort).
		WhereSearch(page.Search, "Name", "DocumentID")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	list, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanSummary)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	result := pagination.NewPageResult(list, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Session, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	s, err := repository.QueryOne(ctx, r.db, q, args, scanSession)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &s, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Session, error) {
	if cmd.DocumentID == "" {
		return nil, ErrMissingDocument
	}

	draft := &Session{
		FieldSelection:   cmd.FieldSelection,
		OriginalSnapshot: cmd.OriginalSnapshot,
		Configs:          cmd.Configs,
	}

	cols, err := encodeColumns(draft)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
		INSERT INTO sessions (id, document_id, document_label, field_selection, original_snapshot, configs)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb)
		RETURNING %s`, returning)

	args := []any{
		uuid.New(),
		cmd.DocumentID,
		cmd.DocumentLabel,
		string(cols.selection),
		string(cols.snapshot),
		string(cols.configs),
	}

	s, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Session, error) {
		return repository.QueryOne(ctx, tx, q, args, scanSession)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("session created", "id", s.ID, "document", s.DocumentID)
	return &s, nil
}

func (r *repo) Update(ctx context.Context, s *Session) error {
	cols, err := encodeColumns(s)
	if err != nil {
		return err
	}

	q := `
		UPDATE sessions SET
			name = $2,
			field_selection = $3::jsonb,
			original_snapshot = $4::jsonb,
			configs = $5::jsonb,
			stage_results = $6::jsonb,
			iteration_history = $7::jsonb,
			iteration_count = $8,
			guidance = $9,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	args := []any{
		s.ID,
		s.Name,
		string(cols.selection),
		string(cols.snapshot),
		string(cols.configs),
		string(cols.results),
		string(cols.history),
		s.IterationCount,
		s.Guidance,
	}

	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&s.UpdatedAt); err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Debug("session updated", "id", s.ID, "history", len(s.IterationHistory))
	return nil
}

func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	err := repository.ExecExpectOne(ctx, r.db, "DELETE FROM sessions WHERE id = $1", id)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("session deleted", "id", id)
	return nil
}

func (r *repo) DeleteAllForDocument(ctx context.Context, documentID string) (int, error) {
	n, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (int64, error) {
		return repository.ExecAffected(ctx, tx, "DELETE FROM sessions WHERE document_id = $1", documentID)
	})
	if err != nil {
		return 0, fmt.Errorf("delete sessions for %s: %w", documentID, err)
	}

	r.logger.Info("document sessions deleted", "document", documentID, "count", n)
	return int(n), nil
}

// returning lists the session columns unqualified for RETURNING clauses.
var returning = strings.ReplaceAll(projection.Columns(), "s.", "")
