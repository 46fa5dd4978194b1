// Package slug derives URL-safe, per-owner unique identifiers from display names.
package slug

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultMaxLength bounds generated slugs.
	DefaultMaxLength = 50
	// Fallback is returned for input with no usable characters.
	Fallback = "project"

	suffixReserve = 10
	maxProbes     = 1000
	escapeBaseLen = 20
)

var (
	// Unicode separators and the ASCII information separators count as whitespace too.
	separatorExpr = regexp.MustCompile(`[\s\v\x{1c}-\x{1f}\x{85}\p{Z}_]+`)
	invalidExpr   = regexp.MustCompile(`[^a-z0-9-]`)
	hyphenRunExpr = regexp.MustCompile(`-+`)
)

// Normalize lowercases text, turns whitespace and underscores into hyphens,
// drops everything outside [a-z0-9-] and collapses repeated hyphens.
// It never returns an empty string.
func Normalize(text string) string {
	s := strings.ToLower(text)
	s = separatorExpr.ReplaceAllString(s, "-")
	s = invalidExpr.ReplaceAllString(s, "")
	s = hyphenRunExpr.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return Fallback
	}
	return s
}

// Checker reports whether slug is already used within scope.
type Checker interface {
	SlugExists(ctx context.Context, scope, slug string) (bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, scope, slug string) (bool, error)

// SlugExists calls f.
func (f CheckerFunc) SlugExists(ctx context.Context, scope, slug string) (bool, error) {
	return f(ctx, scope, slug)
}

// Generator probes a Checker for the first free slug.
// The probe is advisory; storage must still enforce uniqueness.
type Generator struct {
	checker   Checker
	maxLength int
	newID     func() string
}

// NewGenerator returns a Generator bounded by DefaultMaxLength.
func NewGenerator(checker Checker) Generator {
	return Generator{checker: checker, maxLength: DefaultMaxLength, newID: uuid.NewString}
}

// WithMaxLength returns a copy of g using maxLength. Values too small to hold a suffix are ignored.
func (g Generator) WithMaxLength(maxLength int) Generator {
	if maxLength > suffixReserve {
		g.maxLength = maxLength
	}
	return g
}

// MakeUnique returns base (truncated to leave room for a suffix) when free in scope,
// otherwise the first free base-N for N = 1, 2, 3 and so on. After maxProbes lookups it
// gives up on counting and appends eight hex characters of a random UUID.
func (g Generator) MakeUnique(ctx context.Context, base, scope string) (string, error) {
	base = truncate(base, g.maxLength-suffixReserve)
	if base == "" {
		base = Fallback
	}

	taken, err := g.checker.SlugExists(ctx, scope, base)
	if err != nil {
		return "", fmt.Errorf("probe slug %q: %w", base, err)
	}
	if !taken {
		return base, nil
	}

	for counter := 1; counter < maxProbes; counter++ {
		suffix := "-" + strconv.Itoa(counter)
		candidate := truncate(base, g.maxLength-len(suffix)) + suffix
		taken, err := g.checker.SlugExists(ctx, scope, candidate)
		if err != nil {
			return "", fmt.Errorf("probe slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}

	id := strings.ReplaceAll(g.newID(), "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return truncate(base, escapeBaseLen) + "-" + id, nil
}

// truncate cuts s to at most n bytes and drops a dangling hyphen left by the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimRight(s[:n], "-")
}
