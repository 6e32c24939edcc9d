// Package pagination carries page requests and page results between list
// commands and the repositories that serve them.
package pagination

import "github.com/JaimeStill/refine/pkg/query"

// PageRequest asks for one page of a listing with optional search and sort.
type PageRequest struct {
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Search   *string           `json:"search,omitempty"`
	Sort     []query.SortField `json:"sort,omitempty"`
}

// NewPageRequest builds a normalized request from command-line style inputs.
// sort uses the "field,-field" syntax of query.ParseSortFields.
func NewPageRequest(page, pageSize int, search, sort string, cfg Config) PageRequest {
	req := PageRequest{
		Page:     page,
		PageSize: pageSize,
		Sort:     query.ParseSortFields(sort),
	}
	if search != "" {
		req.Search = &search
	}
	req.Normalize(cfg)
	return req
}

// Normalize clamps page to at least 1 and page size into [1, cfg.MaxPageSize],
// substituting cfg.DefaultPageSize when unset.
func (r *PageRequest) Normalize(cfg Config) {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = cfg.DefaultPageSize
	}
	if r.PageSize > cfg.MaxPageSize {
		r.PageSize = cfg.MaxPageSize
	}
}

// Offset returns the number of records preceding the page.
func (r *PageRequest) Offset() int {
	return (r.Page - 1) * r.PageSize
}

// PageResult is one page of T plus the totals needed to navigate.
type PageResult[T any] struct {
	Data       []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// NewPageResult computes TotalPages (at least 1) and substitutes an empty
// slice for nil data.
func NewPageResult[T any](data []T, total, page, pageSize int) PageResult[T] {
	totalPages := max((total+pageSize-1)/pageSize, 1)

	if data == nil {
		data = []T{}
	}

	return PageResult[T]{
		Data:       data,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// Slice pages an in-memory list that is already filtered and sorted.
func Slice[T any](all []T, req PageRequest) PageResult[T] {
	start := min(req.Offset(), len(all))
	end := min(start+req.PageSize, len(all))
	return NewPageResult(all[start:end], len(all), req.Page, req.PageSize)
}
