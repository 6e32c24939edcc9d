package sessions

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/JaimeStill/refine/internal/stages"
	"github.com/JaimeStill/refine/pkg/pagination"
)

type memory struct {
	mu         sync.Mutex
	cache      *cache.Cache
	logger     *slog.Logger
	pagination pagination.Config
	now        func() time.Time
}

// NewMemory creates an in-process System backed by go-cache. Sessions expire
// after ttl of inactivity; a non-positive ttl keeps them until deleted.
// Stored sessions are serialized, so callers never share memory with the store.
func NewMemory(ttl time.Duration, logger *slog.Logger, pagination pagination.Config) System {
	expiration := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expiration = ttl
		cleanup = ttl / 2
	}

	return &memory{
		cache:      cache.New(expiration, cleanup),
		logger:     logger.With("system", "sessions"),
		pagination: pagination,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *memory) ListForDocument(_ context.Context, documentID string) ([]Session, error) {
	list, err := m.all(func(s *Session) bool { return s.DocumentID == documentID })
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (m *memory) Search(
	_ context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Summary], error) {
	page.Normalize(m.pagination)

	list, err := m.all(func(s *Session) bool {
		if filters.DocumentID != nil && s.DocumentID != *filters.DocumentID {
			return false
		}
		if filters.UpdatedSince != nil && s.UpdatedAt.Before(*filters.UpdatedSince) {
			return false
		}
		if page.Search != nil && *page.Search != "" {
			needle := strings.ToLower(*page.Search)
			name := ""
			if s.Name != nil {
				name = *s.Name
			}
			return strings.Contains(strings.ToLower(name), needle) ||
				strings.Contains(strings.ToLower(s.DocumentID), needle)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	result := pagination.Slice(Summaries(list), page)
	return &result, nil
}

func (m *memory) Find(_ context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *memory) Create(_ context.Context, cmd CreateCommand) (*Session, error) {
	if cmd.DocumentID == "" {
		return nil, ErrMissingDocument
	}

	now := m.now()
	s := &Session{
		ID:               uuid.New(),
		DocumentID:       cmd.DocumentID,
		DocumentLabel:    cmd.DocumentLabel,
		FieldSelection:   slices.Clone(cmd.FieldSelection),
		OriginalSnapshot: cmd.OriginalSnapshot,
		Configs:          cmd.Configs,
		StageResults:     make(map[stages.Stage]stages.Result),
		IterationHistory: []stages.Result{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.put(s, true); err != nil {
		return nil, err
	}

	m.logger.Info("session created", "id", s.ID, "document", s.DocumentID)
	return m.get(s.ID)
}

func (m *memory) Update(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found := m.cache.Get(s.ID.String()); !found {
		return ErrNotFound
	}

	s.UpdatedAt = m.now()
	if err := m.put(s, false); err != nil {
		return err
	}

	m.logger.Debug("session updated", "id", s.ID, "history", len(s.IterationHistory))
	return nil
}

func (m *memory) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found := m.cache.Get(id.String()); !found {
		return ErrNotFound
	}
	m.cache.Delete(id.String())

	m.logger.Info("session deleted", "id", id)
	return nil
}

func (m *memory) DeleteAllForDocument(_ context.Context, documentID string) (int, error) {
	list, err := m.all(func(s *Session) bool { return s.DocumentID == documentID })
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	for _, s := range list {
		m.cache.Delete(s.ID.String())
	}
	m.mu.Unlock()

	m.logger.Info("document sessions deleted", "document", documentID, "count", len(list))
	return len(list), nil
}

// all decodes every live session matching keep, most recently updated first.
func (m *memory) all(keep func(*Session) bool) ([]Session, error) {
	m.mu.Lock()
	items := m.cache.Items()
	m.mu.Unlock()

	list := make([]Session, 0, len(items))
	for key, item := range items {
		var s Session
		if err := json.Unmarshal(item.Object.([]byte), &s); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", key, err)
		}
		if keep(&s) {
			list = append(list, s)
		}
	}

	slices.SortFunc(list, func(a, b Session) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})

	return list, nil
}

func (m *memory) get(id uuid.UUID) (*Session, error) {
	raw, found := m.cache.Get(id.String())
	if !found {
		return nil, ErrNotFound
	}

	var s Session
	if err := json.Unmarshal(raw.([]byte), &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (m *memory) put(s *Session, create bool) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}

	if create {
		if err := m.cache.Add(s.ID.String(), data, cache.DefaultExpiration); err != nil {
			return ErrDuplicate
		}
		return nil
	}

	m.cache.Set(s.ID.String(), data, cache.DefaultExpiration)
	return nil
}
