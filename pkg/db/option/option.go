package option

import (
	"fmt"
	"strings"

	"github.com/thelesson/lessonbill/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type queryOptionFunc func(*gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator adds a single comparison predicate.
func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if cond.Field == "" {
			return db
		}
		return db.Where(fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), cond.Value)
	})
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	// Allow whitelists sortable columns.
	Allow map[string]bool
}

func WithQuerySortBy(sortBy, orderBy string, allow map[string]bool) QuerySortBy {
	return QuerySortBy{SortBy: sortBy, OrderBy: orderBy, Allow: allow}
}

// WithSortBy orders the query by an allowed column, defaulting to created_at desc.
func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		column := strings.TrimSpace(sort.SortBy)
		if column == "" || !sort.Allow[column] {
			column = "created_at"
			if !sort.Allow[column] {
				return db
			}
		}

		direction := strings.ToLower(strings.TrimSpace(sort.OrderBy))
		if direction != "asc" {
			direction = "desc"
		}

		return db.Order(fmt.Sprintf("%s %s", column, direction))
	})
}

// ApplyPagination applies a cursor page: rows strictly older than the token,
// one extra row fetched so callers can detect has_more.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		size := page.PageSize
		if size <= 0 {
			size = 10
		}

		if token := strings.TrimSpace(page.PageToken); token != "" {
			cursor, err := pagination.DecodeCursor(token)
			if err == nil && cursor.CreatedAt != "" {
				db = db.Where("created_at < ?", cursor.CreatedAt)
			}
		}

		return db.Limit(size + 1)
	})
}

func Limit(n int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if n <= 0 {
			return db
		}
		return db.Limit(n)
	})
}
