package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/refine/internal/sessions"
	"github.com/JaimeStill/refine/pkg/pagination"
)

func seedSessions(t *testing.T) sessions.System {
	t.Helper()
	ctx := context.Background()

	cfg := pagination.Config{}
	require.NoError(t, cfg.Finalize(nil))
	sys := sessions.NewMemory(0, slog.New(slog.DiscardHandler), cfg)

	for _, seed := range []struct{ doc, name string }{
		{"listing-a", "Holiday copy"},
		{"listing-a", "Short form"},
		{"listing-b", "Holiday banner"},
	} {
		s, err := sys.Create(ctx, sessions.CreateCommand{DocumentID: seed.doc})
		require.NoError(t, err)
		s.Name = &seed.name
		require.NoError(t, sys.Update(ctx, s))
	}
	return sys
}

func TestSearchSessions(t *testing.T) {
	sys := seedSessions(t)
	ctx := context.Background()
	cfg := pagination.Config{}
	require.NoError(t, cfg.Finalize(nil))

	doc := "listing-a"
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		req     pagination.PageRequest
		filters sessions.Filters
		want    []string
		footer  string
	}{
		{
			name:   "query matches names across documents",
			req:    pagination.NewPageRequest(1, 0, "holiday", "", cfg),
			want:   []string{"Holiday copy", "Holiday banner"},
			footer: "page 1 of 1 (2 sessions)",
		},
		{
			name:    "document filter",
			req:     pagination.NewPageRequest(1, 0, "", "", cfg),
			filters: sessions.Filters{DocumentID: &doc},
			want:    []string{"Holiday copy", "Short form"},
			footer:  "page 1 of 1 (2 sessions)",
		},
		{
			name:   "paged",
			req:    pagination.NewPageRequest(2, 2, "", "", cfg),
			want:   []string{},
			footer: "page 2 of 2 (3 sessions)",
		},
		{
			name:    "nothing updated since",
			req:     pagination.NewPageRequest(1, 0, "", "", cfg),
			filters: sessions.Filters{UpdatedSince: &future},
			footer:  "no matching sessions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, searchSessions(ctx, sys, tt.req, tt.filters, &out))

			got := out.String()
			for _, name := range tt.want {
				assert.Contains(t, got, name)
			}
			assert.Contains(t, got, tt.footer)
			if tt.footer == "no matching sessions" {
				assert.NotContains(t, got, "ID")
			}
		})
	}

	t.Run("paged rows", func(t *testing.T) {
		var out bytes.Buffer
		req := pagination.NewPageRequest(2, 2, "", "", cfg)
		require.NoError(t, searchSessions(ctx, sys, req, sessions.Filters{}, &out))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3, "header, one row, footer")
		assert.True(t, strings.HasPrefix(lines[0], "ID"))
	})
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	got, err := parseSince("36h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-36*time.Hour), got)

	got, err = parseSince("2026-05-01T08:00:00Z", now)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)))

	got, err = parseSince("2026-05-01", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.Local), got)

	for _, bad := range []string{"-2h", "yesterday", "05/01/2026"} {
		_, err := parseSince(bad, now)
		assert.Error(t, err, bad)
	}
}

func TestSessionsSearchCommand(t *testing.T) {
	c := newCLI(t)

	out, _, err := c.run("sessions", "search", "--document", c.doc, "draft")
	require.NoError(t, err)
	assert.Contains(t, out, "no matching sessions")

	_, _, err = c.run("sessions", "search", "--since", "last week")
	assert.ErrorContains(t, err, "invalid --since")
}
