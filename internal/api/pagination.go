package api

import (
	"net/http"
	"strconv"
)

// pageRequest is the page/limit pair from a list query, with the derived
// row offset.
type pageRequest struct {
	Number int
	Limit  int
	Offset int
}

// parsePage reads ?page= (1-based) and ?limit=. Bad or missing values fall
// back to page 1 and defaultLimit; limit never exceeds maxLimit.
func parsePage(r *http.Request, defaultLimit, maxLimit int) pageRequest {
	q := r.URL.Query()
	n, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	n = max(n, 1)
	if limit < 1 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	return pageRequest{Number: n, Limit: limit, Offset: (n - 1) * limit}
}

// PageMeta describes where a page sits in the full result.
type PageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

// Page is one page of list results.
type Page[T any] struct {
	Data       []T      `json:"data"`
	Pagination PageMeta `json:"pagination"`
}

func newPage[T any](data []T, req pageRequest, total int64) Page[T] {
	if data == nil {
		data = []T{}
	}
	pages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	pages = max(pages, 1)
	return Page[T]{
		Data: data,
		Pagination: PageMeta{
			Page:       req.Number,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: pages,
			HasMore:    req.Number < pages,
		},
	}
}
