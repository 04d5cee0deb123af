package generators

import (
	"fmt"
	"strings"
)

func toStringSlice(v any) []string {
	out := []string{}
	items, ok := v.([]any)
	if !ok {
		return out
	}
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func toStringMap(v any) map[string]string {
	out := map[string]string{}
	items, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for k, item := range items {
		if s, ok := item.(string); ok {
			out[k] = s
		}
	}
	return out
}

func strFromAny(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// firstN returns at most n items without copying the backing array.
func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func joinList(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// slug normalizes a free-text curriculum label into an id fragment.
func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func wordCount(s string) int { return len(strings.Fields(s)) }

func describeTerms(terms map[string]string) string {
	if len(terms) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(terms))
	for term, def := range terms {
		parts = append(parts, fmt.Sprintf("%s (%s)", term, def))
	}
	return strings.Join(parts, "; ")
}
