// Package movies provides read-only access to the content schema of the
// source database and tracks the sync watermark.
package movies

import (
	"database/sql"
	"time"
)

// Person is the {id, name} projection required by the search index schema in
// addition to the plain name lists.
type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Record is one denormalized unit of change: a movie row aggregated with its
// genres and people, grouped by role. Rating is carried as the driver's raw
// text until the transformer coerces it, so an unparsable value fails loudly
// there instead of being silently zeroed here.
type Record struct {
	ID           string
	Title        string
	Description  sql.NullString
	Rating       sql.NullString
	Genres       []string
	Directors    []string
	ActorsNames  []string
	WritersNames []string
	Actors       []Person
	Writers      []Person
	UpdatedAt    time.Time
}
