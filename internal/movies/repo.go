package movies

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"cinesync/apps/etl/internal/retry"
)

// WatermarkKey is the state key holding the latest successfully processed
// modification time.
const WatermarkKey = "movies_updated_at"

// EpochWatermark is the sentinel used before the first record is committed.
const EpochWatermark = "1970-01-01"

// StateStore is the durable watermark persistence the repo writes through.
type StateStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

const pendingQuery = `SELECT EXISTS(SELECT 1 FROM content.movies WHERE updated_at > $1::timestamptz)`

const changesQuery = `SELECT m.movie_id,
       m.movie_title,
       m.movie_desc,
       m.movie_rating,
       m.updated_at,
       COALESCE(ARRAY_AGG(DISTINCT g.genre_name) FILTER (WHERE g.genre_name IS NOT NULL), '{}') AS genres,
       COALESCE(ARRAY_AGG(DISTINCT p.full_name) FILTER (WHERE mp.person_role = 'director'), '{}') AS directors,
       COALESCE(ARRAY_AGG(DISTINCT p.full_name) FILTER (WHERE mp.person_role = 'actor'), '{}') AS actors_names,
       COALESCE(ARRAY_AGG(DISTINCT p.full_name) FILTER (WHERE mp.person_role = 'writer'), '{}') AS writers_names,
       COALESCE(JSONB_AGG(DISTINCT JSONB_BUILD_OBJECT('id', p.person_id, 'name', p.full_name)) FILTER (WHERE mp.person_role = 'actor'), '[]') AS actors,
       COALESCE(JSONB_AGG(DISTINCT JSONB_BUILD_OBJECT('id', p.person_id, 'name', p.full_name)) FILTER (WHERE mp.person_role = 'writer'), '[]') AS writers
  FROM content.movies m
  LEFT JOIN content.movie_genres mg ON mg.movie_id = m.movie_id
  LEFT JOIN content.genres g ON g.genre_id = mg.genre_id
  LEFT JOIN content.movie_people mp ON mp.movie_id = m.movie_id
  LEFT JOIN content.people p ON p.person_id = mp.person_id
 WHERE m.updated_at > $1::timestamptz
 GROUP BY m.movie_id
 ORDER BY m.updated_at`

// PostgresRepo detects and streams changed movies past the watermark. It is
// strictly read-only on the content schema; the only thing it ever writes is
// the watermark, through the StateStore.
type PostgresRepo struct {
	dsn       string
	chunkSize int
	state     StateStore

	db        *sql.DB
	connected bool
}

func NewPostgresRepo(dsn string, chunkSize int, state StateStore) *PostgresRepo {
	return &PostgresRepo{dsn: dsn, chunkSize: chunkSize, state: state}
}

// NewPostgresRepoWithDB wires an existing handle, e.g. sqlmock in tests.
func NewPostgresRepoWithDB(db *sql.DB, chunkSize int, state StateStore) *PostgresRepo {
	return &PostgresRepo{db: db, chunkSize: chunkSize, state: state}
}

// Connect establishes (or re-verifies) the database connection. Idempotent;
// failures are marked transient so the orchestrator's retry policy applies.
func (r *PostgresRepo) Connect(ctx context.Context) error {
	if r.db == nil {
		db, err := sql.Open("postgres", r.dsn)
		if err != nil {
			return fmt.Errorf("open source db: %w", err)
		}
		r.db = db
	}
	if err := r.db.PingContext(ctx); err != nil {
		return retry.Transient(fmt.Errorf("ping source db: %w", err))
	}
	r.connected = true
	return nil
}

// Disconnect closes the handle. Safe to call when never connected.
func (r *PostgresRepo) Disconnect() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	r.connected = false
	return err
}

// IsConnected reports whether the repo currently holds a live connection. A
// repo that never connected is distinguished from one whose transport died:
// the former is reported without touching the network.
func (r *PostgresRepo) IsConnected(ctx context.Context) bool {
	if r.db == nil || !r.connected {
		return false
	}
	return r.db.PingContext(ctx) == nil
}

// Watermark returns the current watermark, or the epoch sentinel before the
// first commit.
func (r *PostgresRepo) Watermark() string {
	if v, ok := r.state.Get(WatermarkKey); ok && v != "" {
		return v
	}
	return EpochWatermark
}

// CommitWatermark durably advances the watermark to ts. Called by the
// orchestrator only after the records up to ts were confirmed uploaded. The
// watermark never regresses: a commit below the current value is a no-op.
func (r *PostgresRepo) CommitWatermark(ts time.Time) error {
	if cur, err := time.Parse(time.RFC3339Nano, r.Watermark()); err == nil && ts.Before(cur) {
		return nil
	}
	return r.state.Set(WatermarkKey, ts.UTC().Format(time.RFC3339Nano))
}

// HasPendingChanges issues a cheap existence probe for rows modified strictly
// after the watermark, without materializing records.
func (r *PostgresRepo) HasPendingChanges(ctx context.Context) (bool, error) {
	var pending bool
	err := r.db.QueryRowContext(ctx, pendingQuery, r.Watermark()).Scan(&pending)
	if err != nil {
		return false, retry.Transient(fmt.Errorf("pending changes probe: %w", err))
	}
	return pending, nil
}

// StreamChanges opens the aggregating change query and returns a stream of
// bounded chunks. The stream is lazy and non-restartable: abandoning it
// mid-way is safe but the next call resumes from the committed watermark.
func (r *PostgresRepo) StreamChanges(ctx context.Context) (*ChangeStream, error) {
	rows, err := r.db.QueryContext(ctx, changesQuery, r.Watermark())
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("change query: %w", err))
	}
	return &ChangeStream{rows: rows, chunkSize: r.chunkSize}, nil
}

// ChangeStream pulls changed records off the server-side cursor in chunks of
// at most chunkSize.
type ChangeStream struct {
	rows      *sql.Rows
	chunkSize int
}

// Next returns the next chunk, or nil once the stream is exhausted.
func (s *ChangeStream) Next() ([]Record, error) {
	chunk := make([]Record, 0, s.chunkSize)
	for len(chunk) < s.chunkSize && s.rows.Next() {
		var (
			rec         Record
			actorsJSON  []byte
			writersJSON []byte
		)
		err := s.rows.Scan(
			&rec.ID,
			&rec.Title,
			&rec.Description,
			&rec.Rating,
			&rec.UpdatedAt,
			pq.Array(&rec.Genres),
			pq.Array(&rec.Directors),
			pq.Array(&rec.ActorsNames),
			pq.Array(&rec.WritersNames),
			&actorsJSON,
			&writersJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("scan movie row: %w", err)
		}
		if err := json.Unmarshal(actorsJSON, &rec.Actors); err != nil {
			return nil, fmt.Errorf("decode actors for %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal(writersJSON, &rec.Writers); err != nil {
			return nil, fmt.Errorf("decode writers for %s: %w", rec.ID, err)
		}
		chunk = append(chunk, rec)
	}
	if err := s.rows.Err(); err != nil {
		return nil, retry.Transient(fmt.Errorf("change stream: %w", err))
	}
	if len(chunk) == 0 {
		return nil, nil
	}
	return chunk, nil
}

func (s *ChangeStream) Close() error {
	return s.rows.Close()
}
