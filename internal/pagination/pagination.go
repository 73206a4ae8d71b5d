package pagination

const (
	DefaultPage    = 1
	DefaultPerPage = 10
	MaxPerPage     = 100
)

type Query struct {
	Page    int
	PerPage int
}

// Normalize clamps the query into the accepted range.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	return q
}

func (q Query) Offset() int {
	return (q.Page - 1) * q.PerPage
}

type Result[T any] struct {
	Data            []T   `json:"data"`
	Page            int   `json:"page"`
	PerPage         int   `json:"perPage"`
	TotalItems      int64 `json:"totalItems"`
	TotalPages      int   `json:"totalPages"`
	HasPreviousPage bool  `json:"hasPreviousPage"`
	HasNextPage     bool  `json:"hasNextPage"`
}

func New[T any](data []T, total int64, q Query) Result[T] {
	if data == nil {
		data = []T{}
	}
	totalPages := 0
	if q.PerPage > 0 {
		totalPages = int((total + int64(q.PerPage) - 1) / int64(q.PerPage))
	}
	return Result[T]{
		Data:            data,
		Page:            q.Page,
		PerPage:         q.PerPage,
		TotalItems:      total,
		TotalPages:      totalPages,
		HasPreviousPage: q.Page > 1,
		HasNextPage:     q.Page < totalPages,
	}
}

// Map converts the items of a result while keeping its paging metadata.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	out := make([]U, 0, len(r.Data))
	for _, item := range r.Data {
		out = append(out, fn(item))
	}
	return Result[U]{
		Data:            out,
		Page:            r.Page,
		PerPage:         r.PerPage,
		TotalItems:      r.TotalItems,
		TotalPages:      r.TotalPages,
		HasPreviousPage: r.HasPreviousPage,
		HasNextPage:     r.HasNextPage,
	}
}
