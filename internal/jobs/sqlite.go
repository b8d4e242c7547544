package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ppiankov/dossier/internal/model"
)

const schema = `CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	target_name TEXT NOT NULL,
	target_context TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	result TEXT,
	report_path TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// timeLayout is fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const jobColumns = `id, target_name, target_context, status, error, result, report_path, created_at, updated_at`

// SQLiteStore keeps jobs in a SQLite database so they survive restarts.
// The research state of a completed job is stored as JSON.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, job *model.Job) error {
	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM jobs WHERE id = ?`, job.ID).Scan(&exists); err != nil {
		return fmt.Errorf("checking job %s: %w", job.ID, err)
	}
	if exists > 0 {
		return ErrExists
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.TargetName, job.TargetContext, string(job.Status), job.Error, result, job.ReportPath,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting job %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

func (s *SQLiteStore) Update(ctx context.Context, job *model.Job) error {
	n, err := s.update(ctx, job, "")
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateIf adds the expected status to the UPDATE's WHERE clause
func (s *SQLiteStore) UpdateIf(ctx context.Context, job *model.Job, from model.JobStatus) error {
	n, err := s.update(ctx, job, from)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, job.ID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking job %s: %w", job.ID, err)
	}
	return fmt.Errorf("%w: %s is %s, not %s", ErrStatusChanged, job.ID, status, from)
}

// update writes every mutable column. A non-empty from adds a status guard.
func (s *SQLiteStore) update(ctx context.Context, job *model.Job, from model.JobStatus) (int64, error) {
	result, err := encodeResult(job.Result)
	if err != nil {
		return 0, err
	}

	query := `UPDATE jobs SET target_name = ?, target_context = ?, status = ?, error = ?, result = ?, report_path = ?, updated_at = ?
		 WHERE id = ?`
	args := []any{job.TargetName, job.TargetContext, string(job.Status), job.Error, result, job.ReportPath,
		formatTime(job.UpdatedAt), job.ID}
	if from != "" {
		query += ` AND status = ?`
		args = append(args, string(from))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("updating job %s: %w", job.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("updating job %s: %w", job.ID, err)
	}
	return n, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*model.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*model.Job, error) {
	var (
		job                  model.Job
		status               string
		result               sql.NullString
		createdAt, updatedAt string
	)
	if err := sc.Scan(&job.ID, &job.TargetName, &job.TargetContext, &status, &job.Error,
		&result, &job.ReportPath, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	job.Status = model.JobStatus(status)

	var err error
	if job.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("job %s created_at: %w", job.ID, err)
	}
	if job.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("job %s updated_at: %w", job.ID, err)
	}

	if result.Valid && result.String != "" {
		var st model.ResearchState
		if err := json.Unmarshal([]byte(result.String), &st); err != nil {
			return nil, fmt.Errorf("job %s result: %w", job.ID, err)
		}
		job.Result = &st
	}
	return &job, nil
}

func encodeResult(st *model.ResearchState) (sql.NullString, error) {
	if st == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding result: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
