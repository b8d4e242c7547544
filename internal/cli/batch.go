package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/dossier/internal/service"
	"github.com/ppiankov/dossier/internal/worker"
)

var (
	concurrency  int
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Research many targets from a file in parallel",
	Long: `Batch researches every target listed in a file:
- One target per line as "Name | context" (context optional)
- Blank lines and lines starting with # are ignored
- Repeated lines are researched once
- Each target gets its own report in the reports directory

Example:
  dossier batch targets.txt
  dossier batch targets.txt --concurrency 4 --timeout 2h`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 2, "number of targets researched at once")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 2*time.Hour, "total timeout for batch processing")
}

func runBatch(cmd *cobra.Command, args []string) (err error) {
	file := args[0]
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	targets, err := worker.ReadTargetsFromFile(file)
	if err != nil {
		return fmt.Errorf("read targets: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Dossier Batch Research\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Targets:      %d\n", len(targets))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Reports dir:  %s\n", cfg.Output.ReportsDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	app, err := service.NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	runner := worker.NewBatchRunner(app.Research, concurrency, logger)
	results := runner.Run(ctx, targets)

	successCount, failureCount := printBatchResults(results)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d targets\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", cfg.Output.ReportsDir)
	fmt.Fprintf(os.Stderr, "\n")

	if failureCount > 0 && successCount == 0 {
		return fmt.Errorf("all %d targets failed", failureCount)
	}
	return nil
}

func printBatchResults(results []worker.BatchResult) (success, failure int) {
	for _, r := range results {
		if r.Err != nil {
			failure++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.Target.Name, r.Err)
			continue
		}
		success++

		facts, risks := 0, 0
		if r.Job != nil && r.Job.Result != nil {
			facts, risks = len(r.Job.Result.ExtractedFacts), len(r.Job.Result.RiskFlags)
		}
		fmt.Fprintf(os.Stderr, "✓ %s (%d facts, %d risks)\n", r.Target.Name, facts, risks)
	}
	return success, failure
}
