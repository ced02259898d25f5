package inmemdb

import (
	"strings"

	"github.com/kenamplan/backend/core"
)

// lessBy applies orderings in turn; cmp compares the two rows on a given field.
func lessBy(ordering []core.DBOrdering, cmp func(field string) int) bool {
	for _, ord := range ordering {
		c := cmp(ord.Field)
		if c == 0 {
			continue
		}
		if ord.Ascending {
			return c < 0
		}
		return c > 0
	}
	return false
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

// containsAny reports whether any of the values contains the lowercase substring s.
func containsAny(s string, values ...string) bool {
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), s) {
			return true
		}
	}
	return false
}

// paginate slices rows according to page; a nil page returns every row.
func paginate[T any](rows []T, page *core.PageFilter) []T {
	if page == nil {
		return rows
	}
	p := core.Paginate(rows, *page)
	return p.Results
}
