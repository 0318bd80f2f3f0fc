// Package transform converts extracted movie records into the bulk payload
// the search index consumes.
package transform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"cinesync/apps/etl/internal/movies"
)

// ErrMalformedRecord marks records missing a required field or carrying an
// unparsable rating. These are never retried and never dropped silently: a
// dropped record would vanish from the index for good.
var ErrMalformedRecord = errors.New("malformed record")

// IndexName is the target search index for movie documents.
const IndexName = "movies"

type action struct {
	Index indexMeta `json:"index"`
}

type indexMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

type document struct {
	IMDBRating   *float64        `json:"imdb_rating"`
	Genre        []string        `json:"genre"`
	Title        string          `json:"title"`
	Description  *string         `json:"description"`
	Director     []string        `json:"director"`
	ActorsNames  []string        `json:"actors_names"`
	WritersNames []string        `json:"writers_names"`
	Actors       []movies.Person `json:"actors"`
	Writers      []movies.Person `json:"writers"`
}

// Chunk serializes a chunk of records into one newline-delimited payload:
// for each record an index action line followed by the document line, the
// whole payload terminated by a single trailing newline. Pure and
// deterministic; no I/O.
func Chunk(records []movies.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if rec.ID == "" || rec.Title == "" || rec.UpdatedAt.IsZero() {
			return nil, fmt.Errorf("%w: id=%q title=%q", ErrMalformedRecord, rec.ID, rec.Title)
		}

		doc := document{
			Genre:        emptyIfNil(rec.Genres),
			Title:        rec.Title,
			Director:     emptyIfNil(rec.Directors),
			ActorsNames:  emptyIfNil(rec.ActorsNames),
			WritersNames: emptyIfNil(rec.WritersNames),
			Actors:       emptyPeopleIfNil(rec.Actors),
			Writers:      emptyPeopleIfNil(rec.Writers),
		}
		if rec.Description.Valid {
			doc.Description = &rec.Description.String
		}
		if rec.Rating.Valid {
			rating, err := strconv.ParseFloat(rec.Rating.String, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: rating %q of %s", ErrMalformedRecord, rec.Rating.String, rec.ID)
			}
			doc.IMDBRating = &rating
		}

		// json.Encoder appends the newline after each value.
		if err := enc.Encode(action{Index: indexMeta{Index: IndexName, ID: rec.ID}}); err != nil {
			return nil, fmt.Errorf("encode action for %s: %w", rec.ID, err)
		}
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode document for %s: %w", rec.ID, err)
		}
	}
	return buf.Bytes(), nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyPeopleIfNil(p []movies.Person) []movies.Person {
	if p == nil {
		return []movies.Person{}
	}
	return p
}
