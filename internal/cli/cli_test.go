package cli

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/dossier/internal/model"
)

func TestLoadConfig_Defaults(t *testing.T) {
	v := viper.New()
	require.NoError(t, configureViper(v, filepath.Join(t.TempDir(), "absent.yaml")))

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig(), cfg)
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  max_iterations: 3
  confidence_threshold: 0.8
search:
  max_results: 7
llm:
  request_timeout: 45s
`), 0o644))

	t.Setenv("DOSSIER_PIPELINE_MAX_ITERATIONS", "4")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	t.Setenv("TAVILY_API_KEY", "tvly-test")
	t.Setenv("NEO4J_URI", "neo4j+s://graph.example.com")

	v := viper.New()
	require.NoError(t, configureViper(v, path))
	require.NoError(t, v.ReadInConfig())

	cfg, err := loadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Pipeline.MaxIterations, "env beats file")
	assert.Equal(t, 0.8, cfg.Pipeline.ConfidenceThreshold, "file beats default")
	assert.Equal(t, 7, cfg.Search.MaxResults)
	assert.Equal(t, 45*time.Second, cfg.LLM.RequestTimeout)
	assert.Equal(t, "sk-or-test", cfg.LLM.OpenAI.APIKey)
	assert.Equal(t, "sk-or-test", cfg.LLM.Gemini.APIKey)
	assert.Equal(t, "tvly-test", cfg.Search.APIKey)
	assert.Equal(t, "neo4j+s://graph.example.com", cfg.Graph.URI)
	assert.Equal(t, "advanced", cfg.Search.Depth, "untouched keys keep defaults")

	v.Set("pipeline.max_iterations", 2)
	cfg, err = loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Pipeline.MaxIterations, "explicit values beat env")
}

func TestInitConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".dossier", "config.yaml")
	require.NoError(t, initConfigFile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "OPENROUTER_API_KEY")

	var cfg model.Config
	require.NoError(t, yaml.Unmarshal(raw, &cfg))
	assert.Equal(t, model.DefaultConfig(), cfg)

	assert.Error(t, initConfigFile(path), "existing files are never overwritten")
}

func TestRedact(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.LLM.OpenAI.APIKey = "secret"
	cfg.Graph.Password = "hunter2"

	out := redact(cfg)
	assert.Equal(t, "********", out.LLM.OpenAI.APIKey)
	assert.Equal(t, "********", out.Graph.Password)
	assert.Empty(t, out.Search.APIKey)
	assert.Equal(t, "secret", cfg.LLM.OpenAI.APIKey)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"k":"v"`)

	buf.Reset()
	newLogger("bogus", "text", &buf).Debug("dropped")
	assert.Empty(t, buf.String())
}
