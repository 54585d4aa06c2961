package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"address-route-optimizer/internal/database"
	"address-route-optimizer/internal/models"
)

type resultRepository struct {
	store *Store
}

const resultColumns = `run_id, filename, url, backend, errors, created_at`

func (r *resultRepository) Add(ctx context.Context, res *models.StoredResult) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	errs := res.Errors
	if errs == nil {
		errs = []string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("failed to encode result errors: %w", err)
	}

	query := `INSERT INTO results (` + resultColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.store.db.ExecContext(ctx, query,
		res.RunID, res.Filename, res.URL, res.Backend, string(errJSON), res.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to add result: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*models.StoredResult, error) {
	var res models.StoredResult
	var errJSON string
	if err := row.Scan(&res.RunID, &res.Filename, &res.URL, &res.Backend, &errJSON, &res.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(errJSON), &res.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode result errors: %w", err)
	}
	return &res, nil
}

func (r *resultRepository) Get(ctx context.Context, runID string) (*models.StoredResult, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	query := `SELECT ` + resultColumns + ` FROM results WHERE run_id = ?`
	res, err := scanResult(r.store.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return res, nil
}

// List returns results newest first
func (r *resultRepository) List(ctx context.Context) ([]models.StoredResult, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	query := `SELECT ` + resultColumns + ` FROM results ORDER BY created_at DESC, id DESC`
	rows, err := r.store.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	results := []models.StoredResult{}
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, *res)
	}

	return results, rows.Err()
}

func (r *resultRepository) Clear(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := r.store.db.ExecContext(ctx, "DELETE FROM results"); err != nil {
		return fmt.Errorf("failed to clear results: %w", err)
	}

	return nil
}
