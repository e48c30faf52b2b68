package journey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/AnthonyJS/SignalStrength/internal/db"
)

// StorageError wraps a persistence medium failure. "Not found" is never a
// StorageError; Get reports it through its found result instead.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Service is the durable journey store: keyed by id with a secondary
// ordering on start_time. Each journey is one row with its sample sequence
// as a jsonb document, so Put is atomic and repeat-safe per sample cycle.
type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// Put upserts the full journey, replacing any previous row with the same id.
func (s *Service) Put(ctx context.Context, j Journey) error {
	if err := j.Validate(); err != nil {
		return err
	}
	samples, err := json.Marshal(j.Samples)
	if err != nil {
		return &StorageError{Op: "put", Err: err}
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO journeys (id, name, start_time, end_time, samples)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE
		SET name=EXCLUDED.name, end_time=EXCLUDED.end_time, samples=EXCLUDED.samples
	`, j.ID, j.Name, j.StartTime, j.EndTime, samples)
	if err != nil {
		return &StorageError{Op: "put", Err: err}
	}
	return nil
}

// Get looks up one journey. A missing id is reported through found, not an
// error; a row that fails validation surfaces the ValidationError.
func (s *Service) Get(ctx context.Context, id string) (Journey, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, start_time, end_time, samples
		FROM journeys WHERE id=$1
	`, id)
	j, err := scanJourney(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Journey{}, false, nil
	}
	if err != nil {
		return Journey{}, false, err
	}
	return j, true, nil
}

// GetAll returns every journey, most recent start first.
func (s *Service) GetAll(ctx context.Context) ([]Journey, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, start_time, end_time, samples
		FROM journeys
		ORDER BY start_time DESC
	`)
	if err != nil {
		return nil, &StorageError{Op: "get_all", Err: err}
	}
	defer rows.Close()

	var journeys []Journey
	for rows.Next() {
		j, err := scanJourney(rows)
		if err != nil {
			return nil, err
		}
		journeys = append(journeys, j)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "get_all", Err: err}
	}
	return journeys, nil
}

// Delete removes the journey. Deleting an absent id is not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM journeys WHERE id=$1`, id); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	return nil
}

// ClearAll removes every journey.
func (s *Service) ClearAll(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM journeys`); err != nil {
		return &StorageError{Op: "clear_all", Err: err}
	}
	return nil
}

func scanJourney(row pgx.Row) (Journey, error) {
	var j Journey
	var samples []byte
	if err := row.Scan(&j.ID, &j.Name, &j.StartTime, &j.EndTime, &samples); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Journey{}, err
		}
		return Journey{}, &StorageError{Op: "scan", Err: err}
	}
	if len(samples) > 0 {
		if err := json.Unmarshal(samples, &j.Samples); err != nil {
			return Journey{}, &StorageError{Op: "scan", Err: err}
		}
	}
	if j.Samples == nil {
		j.Samples = []Sample{}
	}
	// A hand-edited or corrupted row fails loudly here instead of being
	// admitted into memory.
	if err := j.Validate(); err != nil {
		return Journey{}, err
	}
	return j, nil
}
