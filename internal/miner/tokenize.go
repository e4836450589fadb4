package miner

import (
	"regexp"
	"strings"
)

// extraDelimiters are split points in addition to whitespace. Tokens are
// never re-split once created.
const extraDelimiters = ":=,\"'[](){}<>|\\/?!;&%$#@^*+-_~`"

func isDelimiter(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return strings.ContainsRune(extraDelimiters, r)
}

// Tokenize splits a message on whitespace and the configured extra
// delimiter set.
func Tokenize(message string) []string {
	return strings.FieldsFunc(message, isDelimiter)
}

var (
	uuidPattern      = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	longHexPattern   = regexp.MustCompile(`^[0-9a-fA-F]{32,}$`)
	isoZPattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z$`)
	largeIntPattern  = regexp.MustCompile(`^\d{6,}$`)
	emailPattern     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Wildcard is the masking/generalization marker.
const Wildcard = "<*>"

// premask applies an ordered set of regex substitutions to a single token,
// replacing it wholesale with the wildcard marker on a match.
// IPs, ports, and short integers intentionally do not match any of these
// patterns and survive as literals.
func premask(token string) string {
	switch {
	case uuidPattern.MatchString(token):
		return Wildcard
	case longHexPattern.MatchString(token):
		return Wildcard
	case isoZPattern.MatchString(token):
		return Wildcard
	case largeIntPattern.MatchString(token):
		return Wildcard
	case emailPattern.MatchString(token):
		return Wildcard
	default:
		return token
	}
}

// PremaskTokens applies premask to every token in the stream and returns
// the result as a new slice; the input slice is not modified.
func PremaskTokens(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = premask(t)
	}
	return out
}
