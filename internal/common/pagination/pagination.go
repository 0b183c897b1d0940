// Package pagination parses page/per_page query parameters and shapes
// paginated list responses.
package pagination

import (
	"net/http"
	"strconv"
)

// Params carries the requested page window.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Limit   int `json:"-"`
	Offset  int `json:"-"`
}

// Response is a single page of results.
type Response[T any] struct {
	Page         int `json:"page"`
	PerPage      int `json:"per_page"`
	TotalPages   int `json:"total_pages"`
	TotalResults int `json:"total_results"`
	Results      []T `json:"results"`
}

const (
	// DefaultPerPage applies when the request names no page size.
	DefaultPerPage = 20
	// MaxPerPage caps the page size a client may request.
	MaxPerPage = 100
)

// ParseParams extracts pagination parameters from the request, clamping
// them to sane bounds.
func ParseParams(r *http.Request) Params {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	return Params{
		Page:    page,
		PerPage: perPage,
		Limit:   perPage,
		Offset:  (page - 1) * perPage,
	}
}

// NewResponse wraps one page of results with its paging metadata.
func NewResponse[T any](results []T, page, perPage, totalResults int) Response[T] {
	return Response[T]{
		Page:         page,
		PerPage:      perPage,
		TotalPages:   totalPages(totalResults, perPage),
		TotalResults: totalResults,
		Results:      results,
	}
}

func totalPages(totalResults, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	pages := (totalResults + perPage - 1) / perPage
	if pages < 1 {
		return 1
	}
	return pages
}
