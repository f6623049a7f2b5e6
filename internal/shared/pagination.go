package shared

import (
	"math"
	"net/url"
	"strconv"
)

const (
	// DefaultPerPage is used when the client does not ask for a page size.
	DefaultPerPage = 20
	// MaxPerPage bounds list endpoints.
	MaxPerPage = 100
	// MaxPage keeps row offsets well inside the integer range.
	MaxPage = 1_000_000
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	page, perPage = NormalizePage(page, perPage)
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// NormalizePage clamps page and perPage to sane values.
func NormalizePage(page, perPage int) (int, int) {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if page <= 0 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	return page, perPage
}

// Offset returns the row offset for a page.
func Offset(page, perPage int) int {
	page, perPage = NormalizePage(page, perPage)
	return (page - 1) * perPage
}

// PageFromQuery reads page and perPage query parameters.
func PageFromQuery(q url.Values) (int, int) {
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	return NormalizePage(page, perPage)
}
