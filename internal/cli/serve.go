package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/dossier/internal/api"
	"github.com/ppiankov/dossier/internal/service"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the research HTTP API",
	Long: `Serve starts the HTTP API. Research jobs are started with
POST /api/research and polled with GET /api/research/{id}/status.

Example:
  dossier serve --addr :8080 --store sqlite`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	_ = viper.BindPFlag("http.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	app, err := service.NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	fmt.Fprintf(os.Stderr, "Dossier API listening on %s (store: %s)\n", cfg.HTTP.Addr, cfg.Store.Driver)

	h := api.NewHandler(ctx, app.Research, app.Metrics.Handler(), logger)
	return api.NewServer(cfg.HTTP.Addr, h, logger).ListenAndServe(ctx)
}
