package persistence

import (
	"strings"

	"gorm.io/gorm/clause"
)

// sortable whitelists the columns a list endpoint may order by. Callers pass
// user input straight through; anything unknown falls back to the default
// column, newest first.
type sortable struct {
	columns  []string
	fallback string
}

var (
	orderSorting = sortable{
		columns:  []string{"ordered_at", "updated_at", "total_amount", "status", "marketplace"},
		fallback: "ordered_at",
	}
	syncRunSorting = sortable{
		columns:  []string{"started_at", "finished_at", "processed", "failed", "quarantined"},
		fallback: "started_at",
	}
)

// by returns the ORDER BY for field and dir with id as a tie breaker, so
// offset pages do not overlap.
func (s sortable) by(field, dir string) clause.OrderBy {
	column := s.fallback
	field = strings.TrimSpace(field)
	for _, c := range s.columns {
		if c == field {
			column = c
			break
		}
	}
	desc := !strings.EqualFold(strings.TrimSpace(dir), "asc")
	return clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Table: clause.CurrentTable, Name: column}, Desc: desc},
		{Column: clause.Column{Table: clause.CurrentTable, Name: "id"}, Desc: desc},
	}}
}
