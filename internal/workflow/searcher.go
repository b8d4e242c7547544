package workflow

import (
	"context"
	"log/slog"

	"github.com/ppiankov/dossier/internal/metrics"
	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/worker"
)

// search runs the planned queries that are not yet in the history,
// concurrently on a bounded pool. A failed query is recorded with no hits.
// With nothing new to run it still advances with an empty delta.
func (s *stages) search(ctx context.Context, st *model.ResearchState) (model.Update, error) {
	executed := st.ExecutedQueries()
	var pending []string
	queued := make(map[string]bool)
	for _, q := range st.ResearchPlan {
		if executed[q] || queued[q] {
			continue
		}
		queued[q] = true
		pending = append(pending, q)
	}

	if len(pending) == 0 {
		s.Logger.Info("all planned queries already executed", slog.Int("iteration", st.Iteration))
		return model.Update{Status: model.StatusExtracting}, nil
	}

	results := worker.Map(ctx, s.SearchWorkers, pending, func(ctx context.Context, q string) ([]model.SearchHit, error) {
		return s.Search.Search(ctx, q, s.MaxResults)
	})

	history := make([]model.SearchResult, 0, len(results))
	for i, r := range results {
		hits := r.Value
		if r.Err != nil {
			s.Metrics.IncSearchQuery(metrics.OutcomeError)
			s.Logger.Error("search failed", slog.String("query", pending[i]), slog.Any("error", r.Err))
			hits = nil
		} else {
			s.Metrics.IncSearchQuery(metrics.OutcomeSuccess)
			s.Logger.Debug("search completed", slog.String("query", pending[i]), slog.Int("results", len(hits)))
		}
		if hits == nil {
			hits = []model.SearchHit{}
		}
		history = append(history, model.SearchResult{Query: pending[i], Results: hits})
	}

	return model.Update{SearchHistory: history, Status: model.StatusExtracting}, nil
}
