// Package classify decides which registered format (if any) a raw log line
// belongs to.
package classify

import (
	"encoding/json"
	"strings"

	"github.com/loganix/logwarden/internal/registry"
)

// Result is the classifier's verdict: a format tag plus the named captures
// extracted by that format's pattern (or the parsed JSON object's fields).
type Result struct {
	FormatTag string
	Captures  map[string]string
	// JSONFields holds the raw decoded JSON object when FormatTag is
	// registry.JSONFormatTag, preserving non-string values (numbers,
	// nested objects) that Captures (map[string]string) cannot.
	JSONFields map[string]interface{}
}

// Classify decides the format of one raw line: a leading '{' that decodes
// as a JSON object wins first; otherwise the registry is scanned in
// declared order and the first matching entry wins; no match yields
// "unknown".
func Classify(line string) Result {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			return Result{FormatTag: registry.JSONFormatTag, JSONFields: obj}
		}
	}

	for _, entry := range registry.Registry {
		if captures, ok := entry.Match(trimmed); ok {
			return Result{FormatTag: entry.Name, Captures: captures}
		}
	}

	return Result{FormatTag: registry.UnknownFormatTag, Captures: map[string]string{}}
}
