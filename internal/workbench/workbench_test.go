package workbench_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/refine/internal/documents"
	"github.com/JaimeStill/refine/internal/sessions"
	"github.com/JaimeStill/refine/internal/workbench"
	"github.com/JaimeStill/refine/pkg/pagination"
	"github.com/JaimeStill/refine/pkg/reactive"
)

const listing = `
label: Listing
fields:
  - key: title
    value: Cozy loft
  - key: description
    value: Two rooms near the park.
`

const other = `
label: Other
fields:
  - key: body
    value: Something else.
`

type fixture struct {
	q     *reactive.Queue
	store *workbench.Store
	sys   sessions.System
	mgr   *workbench.Manager
	doc   *documents.Document
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func parse(t *testing.T, name, src string) *documents.Document {
	t.Helper()
	doc, err := documents.Parse(name, []byte(src))
	require.NoError(t, err)
	return doc
}

func memory(t *testing.T) sessions.System {
	t.Helper()
	cfg := pagination.Config{}
	require.NoError(t, cfg.Finalize(nil))
	return sessions.NewMemory(0, discard(), cfg)
}

func newFixture(t *testing.T, opts ...workbench.Option) *fixture {
	t.Helper()
	q := reactive.NewQueue()
	store := workbench.NewStore(q, discard())
	sys := memory(t)
	return &fixture{
		q:     q,
		store: store,
		sys:   sys,
		mgr:   workbench.NewManager(store, sys, discard(), opts...),
		doc:   parse(t, "listing.yaml", listing),
	}
}

func (f *fixture) state(t *testing.T) workbench.State {
	t.Helper()
	st, err := f.store.GetState()
	require.NoError(t, err)
	return st
}

func (f *fixture) selectDocument(t *testing.T) {
	t.Helper()
	require.NoError(t, f.mgr.SelectDocument(context.Background(), f.doc))
	f.q.Drain()
}
