// Package testutils spins up throwaway infrastructure for integration tests.
package testutils

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// contentSchema mirrors the part of the source database the pipeline reads.
const contentSchema = `
CREATE SCHEMA content;

CREATE TABLE content.movies (
    movie_id     uuid PRIMARY KEY,
    movie_title  text NOT NULL,
    movie_desc   text,
    movie_type   varchar(10),
    movie_rating numeric(2,1),
    created_at   timestamptz,
    updated_at   timestamptz
);

CREATE TABLE content.genres (
    genre_id   uuid PRIMARY KEY,
    genre_name text NOT NULL,
    genre_desc text,
    created_at timestamptz,
    updated_at timestamptz
);

CREATE TABLE content.people (
    person_id   uuid PRIMARY KEY,
    full_name   text NOT NULL,
    person_desc text,
    birthday    date,
    created_at  timestamptz,
    updated_at  timestamptz
);

CREATE TABLE content.movie_genres (
    movie_genres_id uuid PRIMARY KEY,
    movie_id        uuid REFERENCES content.movies ON DELETE CASCADE,
    genre_id        uuid REFERENCES content.genres ON DELETE CASCADE
);

CREATE TABLE content.movie_people (
    movie_people_id uuid PRIMARY KEY,
    movie_id        uuid REFERENCES content.movies ON DELETE CASCADE,
    person_id       uuid REFERENCES content.people ON DELETE CASCADE,
    person_role     varchar(10) NOT NULL
);
`

type IntegrationSuite struct {
	T  *testing.T
	DB *sql.DB

	pgContainer *postgres.PostgresContainer
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	return &IntegrationSuite{T: t}
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("movies_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.pgContainer = pgContainer

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DB, err = sql.Open("postgres", connStr)
	require.NoError(s.T, err)

	_, err = s.DB.ExecContext(ctx, contentSchema)
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.DB != nil {
		_ = s.DB.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(ctx)
	}
}
