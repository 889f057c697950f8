package shared

import (
	"math"
	"strings"
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	if totalPages == 0 {
		totalPages = 1
	}
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Page selects a window of a list. A zero Page means "everything".
type Page struct {
	Number  int
	PerPage int
}

// Bounds returns the slice window [start, end) for n items.
func (p Page) Bounds(n int) (int, int) {
	if p.Number <= 0 {
		return 0, n
	}
	per := p.PerPage
	if per <= 0 {
		per = 20
	}
	start := (p.Number - 1) * per
	if start > n {
		start = n
	}
	end := start + per
	if end > n {
		end = n
	}
	return start, end
}

// Limit returns LIMIT/OFFSET values; limit is -1 when unpaged.
func (p Page) Limit() (int, int) {
	if p.Number <= 0 {
		return -1, 0
	}
	per := p.PerPage
	if per <= 0 {
		per = 20
	}
	return per, (p.Number - 1) * per
}

// Paginate returns the window of items selected by p.
func Paginate[T any](items []T, p Page) []T {
	start, end := p.Bounds(len(items))
	return items[start:end]
}

// MatchesSearch reports whether any field contains the search text, case-insensitively.
func MatchesSearch(search string, fields ...string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}
