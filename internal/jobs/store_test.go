package jobs

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/dossier/internal/model"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func newJob(id string, created time.Time) *model.Job {
	return &model.Job{
		ID:            id,
		TargetName:    "Jane Doe",
		TargetContext: "CEO",
		Status:        model.JobPending,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Create(ctx, newJob("a", created)))
			assert.ErrorIs(t, s.Create(ctx, newJob("a", created)), ErrExists)

			got, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, model.JobPending, got.Status)
			assert.True(t, created.Equal(got.CreatedAt))
			assert.Nil(t, got.Result)

			report := "# report"
			result := model.NewResearchState("Jane Doe", "CEO")
			result.Iteration = 2
			result.Status = model.StatusDone
			result.FinalReport = &report
			result.ExtractedFacts = []model.Fact{{Claim: "CEO of Acme", Entities: []string{"Acme"}, Confidence: 0.9}}

			got.Status = model.JobCompleted
			got.Result = result
			got.ReportPath = "reports/Jane_Doe_a.md"
			got.UpdatedAt = created.Add(time.Minute)
			require.NoError(t, s.Update(ctx, got))

			again, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, model.JobCompleted, again.Status)
			assert.Equal(t, "reports/Jane_Doe_a.md", again.ReportPath)
			assert.True(t, created.Add(time.Minute).Equal(again.UpdatedAt))
			require.NotNil(t, again.Result)
			assert.Equal(t, 2, again.Result.Iteration)
			assert.Equal(t, "# report", *again.Result.FinalReport)
			assert.Equal(t, result.ExtractedFacts, again.Result.ExtractedFacts)

			_, err = s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.Update(ctx, newJob("missing", created)), ErrNotFound)
		})
	}
}

func TestStore_UpdateIf(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Create(ctx, newJob("a", created)))

			running := newJob("a", created)
			running.Status = model.JobRunning
			require.NoError(t, s.UpdateIf(ctx, running, model.JobPending))
			assert.ErrorIs(t, s.UpdateIf(ctx, running, model.JobPending), ErrStatusChanged)

			got, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, model.JobRunning, got.Status)

			assert.ErrorIs(t, s.UpdateIf(ctx, newJob("missing", created), model.JobPending), ErrNotFound)
		})
	}
}

func TestStore_UpdateIfSingleWinner(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Create(ctx, newJob("a", created)))

			var (
				wg   sync.WaitGroup
				wins atomic.Int32
			)
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					job := newJob("a", created)
					job.Status = model.JobRunning
					err := s.UpdateIf(ctx, job, model.JobPending)
					if err == nil {
						wins.Add(1)
						return
					}
					assert.ErrorIs(t, err, ErrStatusChanged)
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			job := newJob("a", time.Now())
			require.NoError(t, s.Create(ctx, job))
			job.Status = model.JobFailed

			got, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, model.JobPending, got.Status)

			got.Status = model.JobRunning
			again, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, model.JobPending, again.Status)
		})
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Create(ctx, newJob("old", base)))
			require.NoError(t, s.Create(ctx, newJob("new", base.Add(1500*time.Millisecond))))
			require.NoError(t, s.Create(ctx, newJob("mid", base.Add(time.Second))))

			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, []string{"new", "mid", "old"}, []string{list[0].ID, list[1].ID, list[2].ID})
		})
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(model.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(model.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(model.StoreConfig{Driver: "postgres"})
	assert.Error(t, err)
}
