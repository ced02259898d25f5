package core

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor runs queries against a connection pool or a transaction.
	DBExecutor interface {
		sqlx.ExtContext
	}

	DB interface {
		DBExecutor

		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
		PingContext(ctx context.Context) error
		Close() error
	}

	// Transactor runs fn inside a single database transaction.
	// The transaction is committed when fn returns nil and rolled back otherwise (panics included).
	// Repositories must be handed the DBExecutor passed to fn for their work to be part of it.
	Transactor interface {
		InTx(ctx context.Context, fn func(exec DBExecutor) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// ParseOrdering parses "name,-created_at" into DBOrderings, dropping any field not in `allowed`.
// `allowed` maps public field names to column names.
func ParseOrdering(s string, allowed map[string]string) []DBOrdering {
	var orderings []DBOrdering
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		col, ok := allowed[field]
		if !ok {
			continue
		}
		orderings = append(orderings, DBOrdering{Field: col, Ascending: !descending})
	}
	return orderings
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageFilter selects a page of results. Zero values mean "first page, default size".
type PageFilter struct {
	Page     int `query:"page"`
	PageSize int `query:"page_size"`
}

func (pf *PageFilter) Clean() {
	if pf.Page < 1 {
		pf.Page = 1
	}
	if pf.PageSize < 1 {
		pf.PageSize = DefaultPageSize
	} else if pf.PageSize > MaxPageSize {
		pf.PageSize = MaxPageSize
	}
}

func (pf PageFilter) Offset() int { return (pf.Page - 1) * pf.PageSize }
func (pf PageFilter) Limit() int  { return pf.PageSize }

// Page is a page of results.
type Page[T any] struct {
	Results  []T `json:"results"`
	Count    int `json:"count"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	NumPages int `json:"num_pages"`
}

func NewPage[T any](results []T, count int, pf PageFilter) Page[T] {
	if results == nil {
		results = []T{}
	}
	numPages := 0
	if pf.PageSize > 0 {
		numPages = (count + pf.PageSize - 1) / pf.PageSize
	}
	return Page[T]{
		Results:  results,
		Count:    count,
		Page:     pf.Page,
		PageSize: pf.PageSize,
		NumPages: numPages,
	}
}

// Paginate slices an in-memory result set.
func Paginate[T any](all []T, pf PageFilter) Page[T] {
	pf.Clean()
	start := pf.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + pf.Limit()
	if end > len(all) {
		end = len(all)
	}
	return NewPage(all[start:end], len(all), pf)
}
