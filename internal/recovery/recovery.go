// Package recovery turns free-form generation output into structured values.
//
// Generated text is not guaranteed to be clean JSON: it may be wrapped in a
// code fence, carry prose around the payload, use unquoted keys, or arrive as
// a list of content parts where some parts hold model reasoning. Recover runs
// an ordered chain of parse strategies and returns the first success.
package recovery

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// diagnosticChars bounds how much of an unparseable payload is logged
const diagnosticChars = 500

var (
	bareKeyRe   = regexp.MustCompile(`([{,])\s*(\w+)\s*:`)
	bracketedRe = regexp.MustCompile(`(?s)\[.*\]`)
	bracedRe    = regexp.MustCompile(`(?s)\{.*\}`)
)

// Strategy is one parse attempt in the chain
type Strategy struct {
	Name  string
	Parse func(text string) (any, error)
}

// DefaultStrategies returns the standard chain, in order
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "strict", Parse: ParseStrict},
		{Name: "quoted_keys", Parse: ParseQuotedKeys},
		{Name: "extracted", Parse: ParseExtracted},
	}
}

// Parser runs a strategy chain and logs unrecoverable payloads
type Parser struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewParser creates a parser with the default strategy chain
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{strategies: DefaultStrategies(), logger: logger}
}

// Recover normalizes content and returns the first successfully parsed value.
// ok is false when every strategy failed; Recover never panics.
func (p *Parser) Recover(content any, label string) (v any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("structured output recovery panicked",
				slog.String("label", label),
				slog.Any("panic", r))
			v, ok = nil, false
		}
	}()

	text := Normalize(content)
	for _, s := range p.strategies {
		if parsed, err := s.Parse(text); err == nil {
			p.logger.Debug("structured output recovered",
				slog.String("label", label),
				slog.String("strategy", s.Name))
			return parsed, true
		}
	}

	p.logger.Warn("could not recover structured output",
		slog.String("label", label),
		slog.String("preview", truncate(text, diagnosticChars)))
	return nil, false
}

// Recover runs the default chain, logging through slog.Default
func Recover(content any, label string) (any, bool) {
	return NewParser(nil).Recover(content, label)
}

// ParseStrict parses text as JSON with no repair
func ParseStrict(text string) (any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty input")
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// ParseQuotedKeys quotes bare mapping keys, then parses strictly
func ParseQuotedKeys(text string) (any, error) {
	return ParseStrict(QuoteBareKeys(text))
}

// ParseExtracted pulls the outermost bracketed or braced span out of text
// and retries the strict and quoted-key strategies on it.
// The delimiter that opens first is tried first.
func ParseExtracted(text string) (any, error) {
	candidates := make([]string, 0, 2)
	list := bracketedRe.FindStringIndex(text)
	obj := bracedRe.FindStringIndex(text)
	switch {
	case list != nil && obj != nil && obj[0] < list[0]:
		candidates = append(candidates, text[obj[0]:obj[1]], text[list[0]:list[1]])
	default:
		if list != nil {
			candidates = append(candidates, text[list[0]:list[1]])
		}
		if obj != nil {
			candidates = append(candidates, text[obj[0]:obj[1]])
		}
	}

	for _, c := range candidates {
		if v, err := ParseStrict(c); err == nil {
			return v, nil
		}
		if v, err := ParseQuotedKeys(c); err == nil {
			return v, nil
		}
	}
	return nil, fmt.Errorf("no parseable span found")
}

// QuoteBareKeys rewrites `{key:` and `, key:` into their quoted form
func QuoteBareKeys(text string) string {
	return bareKeyRe.ReplaceAllString(text, `$1 "$2":`)
}

// StripFence removes one leading code fence line and the last closing fence
func StripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	_, body, found := strings.Cut(text, "\n")
	if !found {
		return strings.TrimSpace(strings.Trim(text, "`"))
	}
	if i := strings.LastIndex(body, "```"); i >= 0 {
		body = body[:i]
	}
	return strings.TrimSpace(body)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
