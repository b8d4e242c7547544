package recovery

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Part types produced by generation backends
const (
	PartText      = "text"
	PartReasoning = "reasoning"
	PartThinking  = "thinking"
)

// Part is one segment of a multi-part generation response
type Part struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textual(partType string) bool {
	switch partType {
	case PartReasoning, PartThinking:
		return false
	default:
		return true
	}
}

// Normalize flattens content to plain text.
// Reasoning parts are dropped and one wrapping code fence is stripped.
func Normalize(content any) string {
	var text string
	switch c := content.(type) {
	case nil:
		return ""
	case string:
		text = c
	case []byte:
		text = string(c)
	case Part:
		if textual(c.Type) {
			text = c.Text
		}
	case []Part:
		texts := make([]string, 0, len(c))
		for _, p := range c {
			if textual(p.Type) {
				texts = append(texts, p.Text)
			}
		}
		text = strings.Join(texts, "\n")
	case []any:
		texts := make([]string, 0, len(c))
		for _, item := range c {
			switch it := item.(type) {
			case string:
				texts = append(texts, it)
			case map[string]any:
				typ, _ := it["type"].(string)
				if !textual(typ) {
					continue
				}
				if t, ok := it["text"].(string); ok {
					texts = append(texts, t)
				}
			}
		}
		text = strings.Join(texts, "\n")
	default:
		text = fmt.Sprint(c)
	}
	return StripFence(text)
}

// AsList returns v as a list. A mapping yields its first list-valued entry
// in key order, which is how generators commonly wrap arrays.
func AsList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case map[string]any:
		for _, k := range sortedKeys(t) {
			if l, ok := t[k].([]any); ok {
				return l, true
			}
		}
	}
	return nil, false
}

// AsMap returns v as a mapping
func AsMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
