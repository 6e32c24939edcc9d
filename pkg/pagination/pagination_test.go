package pagination_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/refine/pkg/pagination"
	"github.com/JaimeStill/refine/pkg/query"
)

func config(t *testing.T) pagination.Config {
	t.Helper()
	cfg := pagination.Config{}
	require.NoError(t, cfg.Finalize(nil))
	return cfg
}

func TestNewPageRequest(t *testing.T) {
	cfg := config(t)

	req := pagination.NewPageRequest(0, 500, "draft", "-UpdatedAt", cfg)

	assert.Equal(t, 1, req.Page)
	assert.Equal(t, cfg.MaxPageSize, req.PageSize)
	require.NotNil(t, req.Search)
	assert.Equal(t, "draft", *req.Search)
	assert.Equal(t, []query.SortField{{Field: "UpdatedAt", Descending: true}}, req.Sort)

	req = pagination.NewPageRequest(2, 0, "", "", cfg)
	assert.Nil(t, req.Search)
	assert.Equal(t, cfg.DefaultPageSize, req.PageSize)
	assert.Equal(t, cfg.DefaultPageSize, req.Offset())
}

func TestNewPageResult(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
	}

	for _, tt := range tests {
		r := pagination.NewPageResult[int](nil, tt.total, 1, tt.size)
		assert.Equal(t, tt.want, r.TotalPages)
		assert.NotNil(t, r.Data)
	}
}

func TestSlice(t *testing.T) {
	all := []int{1, 2, 3, 4, 5}

	r := pagination.Slice(all, pagination.PageRequest{Page: 2, PageSize: 2})
	assert.Equal(t, []int{3, 4}, r.Data)
	assert.Equal(t, 3, r.TotalPages)

	r = pagination.Slice(all, pagination.PageRequest{Page: 9, PageSize: 2})
	assert.Empty(t, r.Data)
	assert.Equal(t, 5, r.Total)
}

func TestConfigValidation(t *testing.T) {
	cfg := pagination.Config{DefaultPageSize: 50, MaxPageSize: 10}
	assert.Error(t, cfg.Finalize(nil))
}
