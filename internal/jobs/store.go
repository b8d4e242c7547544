// Package jobs keeps research job records.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/dossier/internal/model"
)

var (
	// ErrNotFound is returned for an unknown job id
	ErrNotFound = errors.New("job not found")
	// ErrExists is returned when creating a job whose id is taken
	ErrExists = errors.New("job already exists")
	// ErrStatusChanged is returned by UpdateIf when the stored status is not the expected one
	ErrStatusChanged = errors.New("job status changed")
)

// Store persists jobs. Implementations return copies; callers must Update
// to make a change visible.
type Store interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	Update(ctx context.Context, job *model.Job) error
	// UpdateIf writes job only while the stored job is in status from.
	// The check and the write are atomic.
	UpdateIf(ctx context.Context, job *model.Job, from model.JobStatus) error
	// List returns every job, newest first
	List(ctx context.Context) ([]*model.Job, error)
	Close() error
}

// Open returns the store selected by cfg.Driver
func Open(cfg model.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown job store driver %q", cfg.Driver)
	}
}

func cloneJob(j *model.Job) *model.Job {
	c := *j
	if j.Result != nil {
		c.Result = j.Result.Clone()
	}
	return &c
}
