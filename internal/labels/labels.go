// Package labels manages block labels: generation, uniqueness,
// sanitization, and propagation of renames into "<label>_output" references.
package labels

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultLabel replaces a candidate that sanitizes to nothing.
	DefaultLabel = "block"
	// GeneratedPrefix is the stem of labels produced by GenerateLabel.
	GeneratedPrefix = "block_"
	// MaxUniqueAttempts bounds the suffix search in UniqueLabel.
	MaxUniqueAttempts = 10000
	// OutputSuffix forms the parameter key under which a block's output is
	// published.
	OutputSuffix = "_output"
)

var (
	invalidChars  = regexp.MustCompile(`[^A-Za-z0-9_]`)
	repeatedUnder = regexp.MustCompile(`_{2,}`)
	identifier    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// GenerateLabel returns the lowest-numbered block_N not already taken.
func GenerateLabel(existing []string) string {
	taken := toSet(existing)
	for n := 1; ; n++ {
		candidate := GeneratedPrefix + strconv.Itoa(n)
		if !taken[candidate] {
			return candidate
		}
	}
}

// UniqueLabel returns candidate when free, otherwise the first free
// candidate_N for N >= 2. When no suffix up to MaxUniqueAttempts is free the
// unmodified candidate is returned and callers must re-validate before
// persisting.
func UniqueLabel(candidate string, existing []string) string {
	taken := toSet(existing)
	if !taken[candidate] {
		return candidate
	}
	for n := 2; n <= MaxUniqueAttempts; n++ {
		next := candidate + "_" + strconv.Itoa(n)
		if !taken[next] {
			return next
		}
	}
	return candidate
}

// Sanitize turns an arbitrary string into a template-safe identifier.
func Sanitize(candidate string) string {
	s := invalidChars.ReplaceAllString(candidate, "")
	s = repeatedUnder.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return DefaultLabel
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}
	return s
}

// IsValid reports whether label is usable as a template variable name.
func IsValid(label string) bool {
	return identifier.MatchString(label)
}

// OutputKey returns the parameter key that publishes label's output.
func OutputKey(label string) string {
	return label + OutputSuffix
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
