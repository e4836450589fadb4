// Package extract implements field-extraction policies applied after
// classification: severity, network entities, and timestamps.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/loganix/logwarden/internal/model"
)

// explicitSeverityWords is checked in priority order (first match wins) with
// case-insensitive whole-word boundaries. This is tier 1 of the cascade.
var explicitSeverityWords = []struct {
	words    []string
	severity model.Severity
}{
	{[]string{"EMERGENCY", "PANIC"}, model.SeverityEmergency},
	{[]string{"ALERT"}, model.SeverityAlert},
	{[]string{"CRITICAL", "FATAL"}, model.SeverityCritical},
	{[]string{"ERROR", "FAIL"}, model.SeverityError},
	{[]string{"WARN", "NOTICE"}, model.SeverityWarn},
	{[]string{"INFO"}, model.SeverityInfo},
	{[]string{"DEBUG", "TRACE"}, model.SeverityDebug},
}

// heuristicKeywords is tier 3 of the cascade: a looser, non-exhaustive
// keyword scan used only when no explicit severity word or syslog priority
// was found.
var heuristicKeywords = []struct {
	words    []string
	severity model.Severity
}{
	{[]string{"FAIL", "ERROR", "EXCEPTION", "CRASH"}, model.SeverityError},
	{[]string{"WARN", "ALERT", "DENY", "BLOCK"}, model.SeverityWarn},
	{[]string{"DEBUG", "TRACE"}, model.SeverityDebug},
}

var syslogPriorityPattern = regexp.MustCompile(`<(\d{1,3})>`)

func wordBoundaryPattern(word string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
}

// wordPatternCache memoizes the compiled whole-word regexes for every
// keyword in explicitSeverityWords (built once at init, never mutated
// afterward). The heuristic tier uses plain substring matching and has no
// entries here.
var wordPatternCache = buildWordPatternCache()

func buildWordPatternCache() map[string]*regexp.Regexp {
	cache := make(map[string]*regexp.Regexp)
	for _, tier := range explicitSeverityWords {
		for _, w := range tier.words {
			cache[w] = wordBoundaryPattern(w)
		}
	}
	return cache
}

// Severity implements the four-tier severity cascade. It is a pure
// function of the message.
func Severity(message string) model.Severity {
	for _, tier := range explicitSeverityWords {
		for _, w := range tier.words {
			if wordPatternCache[w].MatchString(message) {
				return tier.severity
			}
		}
	}

	if m := syslogPriorityPattern.FindStringSubmatch(message); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return model.SeverityFromSyslogPriority(n)
		}
	}

	lower := strings.ToLower(message)
	for _, tier := range heuristicKeywords {
		for _, w := range tier.words {
			if strings.Contains(lower, strings.ToLower(w)) {
				return tier.severity
			}
		}
	}

	return model.SeverityInfo
}
