package db

import "context"

// journeys: one row per journey, sample sequence as a jsonb document so an
// upsert replaces the whole record atomically. start_time carries the
// secondary ordering for listings.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS journeys (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		start_time BIGINT NOT NULL,
		end_time BIGINT,
		samples JSONB NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS journeys_start_time_idx ON journeys (start_time DESC)`,
}

// EnsureSchema creates the journey table and its ordering index.
func EnsureSchema(ctx context.Context, q Querier) error {
	for _, stmt := range schemaStatements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
