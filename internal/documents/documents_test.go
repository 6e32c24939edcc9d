package documents_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/refine/internal/documents"
)

const sample = `
id: listing-42
label: Listing 42
fields:
  - key: title
    label: Title
    value: Cozy loft
  - key: description
    value: Two rooms near the park.
  - key: tags
    value: loft, park
`

func TestParse(t *testing.T) {
	doc, err := documents.Parse("listing.yaml", []byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "listing-42", doc.ID)
	assert.Equal(t, "Listing 42", doc.Label)
	assert.Equal(t, []string{"title", "description", "tags"}, doc.Keys())
}

func TestParseDefaults(t *testing.T) {
	data := []byte(`{"fields": [{"key": "body", "value": "text"}]}`)

	a, err := documents.Parse("My Notes.json", data)
	require.NoError(t, err)
	b, err := documents.Parse("My Notes.json", data)
	require.NoError(t, err)

	assert.Equal(t, "My Notes", a.Label)
	assert.Regexp(t, `^my-notes-[0-9a-f]{12}$`, a.ID)
	assert.Equal(t, a.ID, b.ID, "id is stable for identical content")
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"malformed", "fields: [", documents.ErrInvalidFile},
		{"no fields", "id: x", documents.ErrInvalidFile},
		{"missing key", "fields:\n  - value: v", documents.ErrInvalidFile},
		{"duplicate key", "fields:\n  - key: a\n  - key: a", documents.ErrDuplicateKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := documents.Parse("doc.yaml", []byte(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSelection(t *testing.T) {
	doc, err := documents.Parse("listing.yaml", []byte(sample))
	require.NoError(t, err)

	t.Run("empty selects all", func(t *testing.T) {
		assert.Len(t, doc.Selected(nil), 3)
	})

	t.Run("keeps document order", func(t *testing.T) {
		got := doc.Selected([]string{"tags", "title", "missing"})
		require.Len(t, got, 2)
		assert.Equal(t, "title", got[0].Key)
		assert.Equal(t, "tags", got[1].Key)
	})

	t.Run("snapshot", func(t *testing.T) {
		assert.Equal(t,
			map[string]string{"title": "Cozy loft"},
			doc.Snapshot([]string{"title"}),
		)
	})

	t.Run("render", func(t *testing.T) {
		assert.Equal(t,
			"Title:\nCozy loft\n\ndescription:\nTwo rooms near the park.",
			doc.Render([]string{"title", "description"}),
		)
	})
}

func TestLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	t.Run("loads", func(t *testing.T) {
		doc, err := documents.NewLoader(0).Load(path)
		require.NoError(t, err)
		assert.Equal(t, "listing-42", doc.ID)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := documents.NewLoader(0).Load(filepath.Join(dir, "nope.yaml"))
		assert.ErrorIs(t, err, documents.ErrNotFound)
	})

	t.Run("too large", func(t *testing.T) {
		_, err := documents.NewLoader(16).Load(path)
		assert.ErrorIs(t, err, documents.ErrFileTooLarge)
	})
}
