package httpx

import (
	"net/http"
	"strconv"

	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

// Envelope is the paginated list shape.
type Envelope struct {
	Data        any `json:"data"`
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// PageFromRequest reads page/per_page. Absent page means an unpaged list.
func PageFromRequest(r *http.Request) shared.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage > 200 {
		perPage = 200
	}
	return shared.Page{Number: page, PerPage: perPage}
}

// List writes a bare array for unpaged requests and the envelope otherwise.
func List[T any](w http.ResponseWriter, page shared.Page, items []T, total int) {
	if items == nil {
		items = []T{}
	}
	if page.Number <= 0 {
		JSON(w, http.StatusOK, items)
		return
	}
	p := shared.NewPagination(page.Number, page.PerPage, total)
	JSON(w, http.StatusOK, Envelope{
		Data:        items,
		CurrentPage: p.Page,
		LastPage:    p.TotalPages,
		PerPage:     p.PerPage,
		Total:       p.Total,
	})
}
