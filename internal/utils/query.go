package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// NormalizeQuery is the exact-cache normal form: lowercase, punctuation
// (.,;:!?) removed, whitespace collapsed and trimmed.
func NormalizeQuery(query string) string {
	lowered := strings.ToLower(query)
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', ';', ':', '!', '?':
			return -1
		}
		return r
	}, lowered)
	return strings.Join(strings.Fields(stripped), " ")
}

// NormalizeForEmbedding keeps only word characters and spaces, collapses
// whitespace, and truncates to maxRunes (0 means no limit).
func NormalizeForEmbedding(text string, maxRunes int) string {
	lowered := strings.ToLower(text)
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, lowered)
	normalized := strings.Join(strings.Fields(stripped), " ")

	if maxRunes > 0 {
		runes := []rune(normalized)
		if len(runes) > maxRunes {
			normalized = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}
	return normalized
}

// HashQuery returns the hex sha256 of the normalized query.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

// SemanticID is the deterministic vector ID for a normalized query, so
// equivalent queries overwrite one another.
func SemanticID(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return "diag_" + hex.EncodeToString(sum[:12])
}
