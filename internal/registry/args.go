package registry

import (
	"fmt"
	"strings"
)

// Argument coercion helpers shared by all toolsets. Arguments arrive as
// JSON-decoded map[string]any from the REST body or the MCP request, so
// numbers are float64 and arrays are []any.

// StringArg returns a required string argument, trimmed.
func StringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("argument %q must not be empty", key)
	}
	return s, nil
}

// OptionalString returns a string argument or the fallback when absent.
func OptionalString(args map[string]any, key, fallback string) string {
	if raw, ok := args[key]; ok {
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return fallback
}

// OptionalBool returns a bool argument or the fallback when absent.
func OptionalBool(args map[string]any, key string, fallback bool) bool {
	if raw, ok := args[key]; ok {
		if b, ok := raw.(bool); ok {
			return b
		}
	}
	return fallback
}

// OptionalInt returns an integer argument or the fallback when absent.
// JSON numbers decode as float64.
func OptionalInt(args map[string]any, key string, fallback int) int {
	if raw, ok := args[key]; ok {
		switch v := raw.(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
	}
	return fallback
}

// StringSliceArg returns a required non-empty []string argument. Accepts
// either a JSON array of strings or a single comma-separated string (the
// LLM occasionally sends tags that way).
func StringSliceArg(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("missing required argument %q", key)
	}
	var out []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("argument %q must be an array of strings", key)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	default:
		return nil, fmt.Errorf("argument %q must be an array of strings", key)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("argument %q must not be empty", key)
	}
	return out, nil
}
