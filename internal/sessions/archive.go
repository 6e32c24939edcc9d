package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/JaimeStill/refine/pkg/formatting"
	"github.com/JaimeStill/refine/pkg/storage"
)

const archiveContentType = "application/json"

// Archiver copies sessions to blob storage as JSON before they are deleted,
// and restores them on request.
type Archiver struct {
	store   storage.System
	maxSize int64
	logger  *slog.Logger
}

// NewArchiver creates an Archiver that refuses archives larger than maxSize bytes.
// A non-positive maxSize disables the limit.
func NewArchiver(store storage.System, maxSize int64, logger *slog.Logger) *Archiver {
	return &Archiver{
		store:   store,
		maxSize: maxSize,
		logger:  logger.With("system", "archive"),
	}
}

// ArchiveKey returns the blob key for a session: sessions/<document>/<id>.json.
func ArchiveKey(documentID string, id uuid.UUID) string {
	return fmt.Sprintf("%s%s.json", archivePrefix(documentID), id)
}

func archivePrefix(documentID string) string {
	return fmt.Sprintf("sessions/%s/", url.PathEscape(documentID))
}

// Archive uploads s and returns its key.
func (a *Archiver) Archive(ctx context.Context, s *Session) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode archive: %w", err)
	}

	if a.maxSize > 0 && int64(len(data)) > a.maxSize {
		return "", fmt.Errorf(
			"%w: %s exceeds %s",
			ErrArchiveTooLarge,
			formatting.FormatBytes(int64(len(data))),
			formatting.FormatBytes(a.maxSize),
		)
	}

	key := ArchiveKey(s.DocumentID, s.ID)
	if err := a.store.Upload(ctx, key, bytes.NewReader(data), archiveContentType); err != nil {
		return "", fmt.Errorf("archive session %s: %w", s.ID, err)
	}

	a.logger.Info(
		"session archived",
		"id", s.ID,
		"key", key,
		"size", formatting.FormatBytes(int64(len(data))),
	)
	return key, nil
}

// Restore downloads the archive at key.
func (a *Archiver) Restore(ctx context.Context, key string) (*Session, error) {
	rc, err := a.store.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", key, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if a.maxSize > 0 {
		r = io.LimitReader(rc, a.maxSize+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", key, err)
	}
	if a.maxSize > 0 && int64(len(data)) > a.maxSize {
		return nil, fmt.Errorf("%w: %s", ErrArchiveTooLarge, key)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode archive %s: %w", key, err)
	}
	return &s, nil
}

// List returns the archives stored for a document.
func (a *Archiver) List(ctx context.Context, documentID string) ([]storage.Object, error) {
	return a.store.List(ctx, archivePrefix(documentID))
}

// Reinstate restores the archive at key into sys as a new session. The
// restored session keeps its content and name but receives a fresh ID, so
// reinstating never collides with a session that still exists.
func (a *Archiver) Reinstate(ctx context.Context, sys System, key string) (*Session, error) {
	archived, err := a.Restore(ctx, key)
	if err != nil {
		return nil, err
	}

	s, err := sys.Create(ctx, CreateCommand{
		DocumentID:       archived.DocumentID,
		DocumentLabel:    archived.DocumentLabel,
		FieldSelection:   archived.FieldSelection,
		OriginalSnapshot: archived.OriginalSnapshot,
		Configs:          archived.Configs,
	})
	if err != nil {
		return nil, fmt.Errorf("reinstate %s: %w", key, err)
	}

	s.Name = archived.Name
	s.StageResults = archived.StageResults
	s.IterationHistory = archived.IterationHistory
	s.IterationCount = archived.IterationCount
	s.Guidance = archived.Guidance

	if err := sys.Update(ctx, s); err != nil {
		return nil, fmt.Errorf("reinstate %s: %w", key, err)
	}

	a.logger.Info("session reinstated", "key", key, "from", archived.ID, "id", s.ID)
	return s, nil
}
