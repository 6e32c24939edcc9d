package query_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JaimeStill/refine/pkg/query"
)

func projection() *query.ProjectionMap {
	return query.
		NewProjectionMap("public", "sessions", "s").
		Project("id", "ID").
		Project("document_id", "DocumentID").
		Project("name", "Name").
		Project("updated_at", "UpdatedAt")
}

func TestParseSortFields(t *testing.T) {
	assert.Nil(t, query.ParseSortFields(""))
	assert.Equal(t,
		[]query.SortField{{Field: "Name"}, {Field: "UpdatedAt", Descending: true}},
		query.ParseSortFields("Name, -UpdatedAt,"),
	)
}

func TestBuilder(t *testing.T) {
	t.Run("build with conditions and default sort", func(t *testing.T) {
		doc := "doc-1"
		search := "draft"
		sql, args := query.
			NewBuilder(projection(), query.SortField{Field: "UpdatedAt", Descending: true}).
			WhereEquals("DocumentID", &doc).
			WhereEquals("Name", nil).
			WhereSearch(&search, "Name", "DocumentID").
			Build()

		assert.Equal(t,
			"SELECT s.id, s.document_id, s.name, s.updated_at FROM public.sessions s"+
				" WHERE s.document_id = $1 AND (s.name ILIKE $2 OR s.document_id ILIKE $3)"+
				" ORDER BY s.updated_at DESC",
			sql,
		)
		assert.Equal(t, []any{&doc, "%draft%", "%draft%"}, args)
	})

	t.Run("page and count", func(t *testing.T) {
		since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		b := query.NewBuilder(projection()).WhereSince("UpdatedAt", &since)

		count, countArgs := b.BuildCount()
		assert.Equal(t, "SELECT COUNT(*) FROM public.sessions s WHERE s.updated_at >= $1", count)
		assert.Equal(t, []any{since}, countArgs)

		page, _ := b.BuildPage(3, 20)
		assert.Contains(t, page, "LIMIT 20 OFFSET 40")
	})

	t.Run("unmapped sort fields dropped", func(t *testing.T) {
		sql, _ := query.
			NewBuilder(projection(), query.SortField{Field: "UpdatedAt", Descending: true}).
			OrderByFields(query.ParseSortFields("Name,id; DROP TABLE sessions")).
			Build()

		assert.Contains(t, sql, "ORDER BY s.name ASC")
		assert.NotContains(t, sql, "DROP")
	})

	t.Run("single", func(t *testing.T) {
		sql, args := query.NewBuilder(projection()).BuildSingle("ID", "abc")
		assert.Equal(t, "SELECT s.id, s.document_id, s.name, s.updated_at FROM public.sessions s WHERE s.id = $1", sql)
		assert.Equal(t, []any{"abc"}, args)
	})
}
