package llm

import (
	"context"
	"strings"
	"time"

	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/recovery"
)

// Message roles
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one chat turn sent to a provider
type Message struct {
	Role    string
	Content string
}

// System builds a system message
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Provider generates text from a conversation.
// A provider instance is configured once with its temperature and
// structured-output mode; see Router for how instances are shared.
type Provider interface {
	// Name returns the backend name
	Name() string

	// Generate runs one completion. Errors are treated as transient by the invoker.
	Generate(ctx context.Context, messages []Message) (*Response, error)
}

// Response is a provider completion split into typed parts.
// Reasoning parts are kept so callers can decide whether to discard them.
type Response struct {
	Parts      []recovery.Part
	Model      string
	TokensUsed int
}

// Text joins the textual parts of the response
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return recovery.Normalize(r.Parts)
}

// Config holds provider construction settings
type Config struct {
	// Backend: "openai" (any OpenAI-compatible endpoint), "anthropic", "ollama"
	Backend string

	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration

	Temperature float32

	// JSONMode asks the backend for a JSON object response where supported
	JSONMode bool

	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Backend:   "openai",
		Timeout:   60 * time.Second,
		MaxTokens: 4096,
	}
}

// ConfigFromModel converts a configured provider section into a Config
func ConfigFromModel(pc model.ProviderConfig) Config {
	cfg := DefaultConfig()
	if pc.Backend != "" {
		cfg.Backend = strings.ToLower(pc.Backend)
	}
	cfg.Model = pc.Model
	cfg.APIKey = pc.APIKey
	cfg.BaseURL = pc.BaseURL
	if pc.Timeout > 0 {
		cfg.Timeout = pc.Timeout
	}
	return cfg
}
