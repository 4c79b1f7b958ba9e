package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/google/uuid"
	"github.com/tinoosan/manifest-sync/internal/data"
)

// PostgresRepo implements RunRepo backed by PostgreSQL.
// Results are stored as JSONB in the `sync_runs` table.
type PostgresRepo struct {
	db *sql.DB
}

// NewPostgresRepo constructs a repository using the provided DSN.
func NewPostgresRepo(ctx context.Context, dsn string) (*PostgresRepo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Verify connection
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := &PostgresRepo{db: db}
	if err := r.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepo) Close() error { return r.db.Close() }

func (r *PostgresRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS sync_runs (
    id UUID PRIMARY KEY,
    manifest_url TEXT NOT NULL,
    download_dir TEXT NOT NULL,
    exit_code INTEGER NOT NULL,
    ok BOOLEAN NOT NULL,
    result JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
`)
	return err
}

// List implements RunReader.List
func (r *PostgresRepo) List(ctx context.Context) (data.Runs, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id,manifest_url,download_dir,result,created_at FROM sync_runs ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out data.Runs
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Get implements RunReader.Get
func (r *PostgresRepo) Get(ctx context.Context, id string) (*data.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, data.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT id,manifest_url,download_dir,result,created_at FROM sync_runs WHERE id=$1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, data.ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// Add implements RunWriter.Add
func (r *PostgresRepo) Add(ctx context.Context, run *data.Run) (*data.Run, error) {
	id := run.ID
	if id == "" {
		id = uuid.NewString()
	}
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	resultJSON, err := json.Marshal(run.Result)
	if err != nil {
		return nil, err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO sync_runs (id,manifest_url,download_dir,exit_code,ok,result,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		id, run.ManifestURL, run.DownloadDir, run.Result.ExitCode, run.Result.OK(), string(resultJSON), created)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRun(rs rowScanner) (*data.Run, error) {
	var (
		id, manifestURL, dir string
		resultRaw            []byte
		created              time.Time
	)
	if err := rs.Scan(&id, &manifestURL, &dir, &resultRaw, &created); err != nil {
		return nil, err
	}
	run := &data.Run{
		ID:          id,
		ManifestURL: manifestURL,
		DownloadDir: dir,
		CreatedAt:   created,
	}
	if len(resultRaw) > 0 {
		if err := json.Unmarshal(resultRaw, &run.Result); err != nil {
			return nil, err
		}
	}
	return run, nil
}
