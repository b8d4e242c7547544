package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/dossier/internal/model"
)

// Version is set at build time
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dossier",
	Short: "Dossier - autonomous deep research on people and organizations",
	Long: `Dossier runs an iterative research pipeline against a named target:
it plans search queries, gathers web results, extracts facts, flags risks,
scores confidence and writes a markdown report.

Findings are leads to verify, not verified truth.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dossier %s\n", Version)
	},
}

// secretEnv maps config keys to the conventional environment variables
// that also set them
var secretEnv = map[string][]string{
	"llm.openai.api_key": {"DOSSIER_LLM_OPENAI_API_KEY", "OPENROUTER_API_KEY"},
	"llm.gemini.api_key": {"DOSSIER_LLM_GEMINI_API_KEY", "OPENROUTER_API_KEY"},
	"search.api_key":     {"DOSSIER_SEARCH_API_KEY", "TAVILY_API_KEY"},
	"graph.uri":          {"DOSSIER_GRAPH_URI", "NEO4J_URI"},
	"graph.username":     {"DOSSIER_GRAPH_USERNAME", "NEO4J_USERNAME"},
	"graph.password":     {"DOSSIER_GRAPH_PASSWORD", "NEO4J_PASSWORD"},
	"graph.database":     {"DOSSIER_GRAPH_DATABASE", "NEO4J_DATABASE"},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.dossier/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")

	rootCmd.PersistentFlags().Int("max-iterations", 0, "maximum research iterations")
	rootCmd.PersistentFlags().Float64("threshold", 0, "confidence threshold used by the sufficiency check")
	rootCmd.PersistentFlags().String("reports-dir", "", "directory for saved reports")
	rootCmd.PersistentFlags().String("store", "", "job store driver (memory, sqlite)")
	rootCmd.PersistentFlags().Bool("scrape", false, "scrape pages of search hits with thin content")

	// Bind flags to viper
	for key, flag := range map[string]string{
		"verbose":                       "verbose",
		"log.level":                     "log-level",
		"log.format":                    "log-format",
		"pipeline.max_iterations":       "max-iterations",
		"pipeline.confidence_threshold": "threshold",
		"output.reports_dir":            "reports-dir",
		"store.driver":                  "store",
		"scrape.enabled":                "scrape",
	} {
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if err := configureViper(viper.GetViper(), cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing config: %v\n", err)
		return
	}

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// configureViper registers defaults, the config file location and the
// environment bindings on v
func configureViper(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".dossier"))
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	if err := setDefaults(v, model.DefaultConfig()); err != nil {
		return err
	}

	// Read in environment variables that match DOSSIER_*
	v.SetEnvPrefix("DOSSIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, envs := range secretEnv {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// setDefaults registers every field of cfg so AutomaticEnv can see it
func setDefaults(v *viper.Viper, cfg model.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	walkDefaults(v, "", tree)
	return nil
}

func walkDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			walkDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// loadConfig resolves the effective configuration from v
func loadConfig(v *viper.Viper) (model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// newLogger builds a slog logger; unknown levels fall back to info
func newLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// setup loads the config and builds the logger for a command
func setup() (model.Config, *slog.Logger, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return cfg, nil, err
	}
	if verbose && cfg.Log.Level == "info" {
		cfg.Log.Level = "debug"
	}
	logger := newLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
