package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/dossier/internal/service"
)

var (
	researchContext string
	researchTimeout time.Duration
	exportDir       string
)

// researchCmd represents the research command
var researchCmd = &cobra.Command{
	Use:   "research <name>",
	Short: "Research a single target and write a report",
	Long: `Research runs the full pipeline for one target:
- Plan search queries from the name and context
- Search the web and extract facts
- Flag risks and map connections
- Score confidence and decide whether to iterate
- Write a markdown report

Example:
  dossier research "Jane Doe" --context "CEO of Acme Corp"
  dossier research "Jane Doe" --max-iterations 3 --export ./out`,
	Args: cobra.ExactArgs(1),
	RunE: runResearch,
}

func init() {
	rootCmd.AddCommand(researchCmd)

	researchCmd.Flags().StringVar(&researchContext, "context", "", "additional context about the target (role, company)")
	researchCmd.Flags().DurationVar(&researchTimeout, "timeout", 30*time.Minute, "overall research timeout")
	researchCmd.Flags().StringVar(&exportDir, "export", "", "also export <name>_report.md and <name>_data.json into this directory")
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runResearch(cmd *cobra.Command, args []string) (err error) {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, researchTimeout)
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

	name := args[0]
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Dossier Research\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Target:         %s\n", name)
	if researchContext != "" {
		fmt.Fprintf(os.Stderr, "  Context:        %s\n", researchContext)
	}
	fmt.Fprintf(os.Stderr, "  Max iterations: %d\n", cfg.Pipeline.MaxIterations)
	fmt.Fprintf(os.Stderr, "  Reports dir:    %s\n", cfg.Output.ReportsDir)
	fmt.Fprintf(os.Stderr, "\n")

	start := time.Now()
	job, err := app.Research.Research(ctx, name, researchContext)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("research timed out after %v: %w", researchTimeout, err)
		}
		return fmt.Errorf("research failed: %w", err)
	}

	result, err := app.Research.Result(ctx, job.ID)
	if err != nil {
		return err
	}
	sum := service.Summarize(result)

	fmt.Fprintf(os.Stderr, "✓ Completed in %v\n", time.Since(start).Round(time.Second))
	fmt.Fprintf(os.Stderr, "✓ %d iterations, %d queries\n", sum.Iterations, sum.QueriesExecuted)
	fmt.Fprintf(os.Stderr, "✓ %d facts (avg confidence %.2f)\n", sum.TotalFacts, sum.AvgConfidence)
	fmt.Fprintf(os.Stderr, "✓ %d risk flags (%d critical, %d high)\n", sum.TotalRisks, sum.CriticalRisks, sum.HighRisks)
	fmt.Fprintf(os.Stderr, "✓ %d connections\n", sum.Connections)
	if job.ReportPath != "" {
		fmt.Fprintf(os.Stderr, "✓ Report: %s\n", job.ReportPath)
	}

	if exportDir != "" {
		md, data, err := service.Export(result, exportDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Exported: %s, %s\n", md, data)
	}
	fmt.Fprintf(os.Stderr, "\n")

	if job.ReportPath == "" {
		fmt.Fprintln(cmd.OutOrStdout(), service.ReportText(result))
	}
	return nil
}
