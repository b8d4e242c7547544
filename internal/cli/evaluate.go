package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/dossier/internal/eval"
	"github.com/ppiankov/dossier/internal/service"
)

var (
	evalConcurrency int
	evalTimeout     time.Duration
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate <personas-dir>",
	Short: "Measure research quality against personas with known facts",
	Long: `Evaluate researches every persona_*.yaml in a directory and scores
the output against the persona's expected facts and risks:
fact recall, estimated precision, F1 and risk recall.

Results are written to <reports-dir>/evaluation_results.json.

Example:
  dossier evaluate ./personas --concurrency 2`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().IntVar(&evalConcurrency, "concurrency", 1, "number of personas researched at once")
	evaluateCmd.Flags().DurationVar(&evalTimeout, "timeout", 4*time.Hour, "total timeout for the evaluation")
}

func runEvaluate(cmd *cobra.Command, args []string) (err error) {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	personas, err := eval.LoadPersonas(args[0])
	if err != nil {
		return err
	}
	if len(personas) == 0 {
		return fmt.Errorf("no persona_*.yaml files in %s", args[0])
	}

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	app, err := service.NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	fmt.Fprintf(os.Stderr, "⚙️  Evaluating %d personas...\n\n", len(personas))

	evaluator := eval.NewEvaluator(app.Research, cfg.Output.ReportsDir, evalConcurrency, logger)
	results, err := evaluator.RunAll(ctx, personas)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", r.Persona, r.Error)
			continue
		}
		fmt.Fprintf(os.Stderr, "✓ %s [%s] recall %.3f  precision %.3f  F1 %.3f  risk recall %.3f\n",
			r.Persona, r.Difficulty,
			r.Metrics.FactRecall.Recall,
			r.Metrics.Precision.EstimatedPrecision,
			r.Metrics.F1,
			r.Metrics.Risks.RiskRecall)
	}
	fmt.Fprintf(os.Stderr, "\nResults: %s\n", filepath.Join(cfg.Output.ReportsDir, eval.ResultsFile))
	return nil
}
