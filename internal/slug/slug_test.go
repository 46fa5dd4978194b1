package slug

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"testing/quick"
)

var slugShape = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

type setChecker struct {
	mu     sync.Mutex
	taken  map[string]bool
	probes int
	err    error
}

func newSetChecker(taken ...string) *setChecker {
	c := &setChecker{taken: make(map[string]bool)}
	for _, s := range taken {
		c.taken[s] = true
	}
	return c
}

func (c *setChecker) SlugExists(ctx context.Context, scope, slug string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes++
	if c.err != nil {
		return false, c.err
	}
	return c.taken[scope+"/"+slug] || c.taken[slug], nil
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "My Project", want: "my-project"},
		{in: "Hello_World  Test", want: "hello-world-test"},
		{in: "  --Foo--Bar--  ", want: "foo-bar"},
		{in: "Café Ünïcode", want: "caf-ncode"},
		{in: "already-a-slug", want: "already-a-slug"},
		{in: "Tabs\tand\nnewlines", want: "tabs-and-newlines"},
		{in: "foo\vbar", want: "foo-bar"},
		{in: "foo\u00a0bar", want: "foo-bar"},
		{in: "foo\u2003bar", want: "foo-bar"},
		{in: "foo\u3000bar", want: "foo-bar"},
		{in: "line\u2028sep\u0085next", want: "line-sep-next"},
		{in: "a\u00a0\u00a0_ b", want: "a-b"},
		{in: "v2.0 Release (beta)!", want: "v20-release-beta"},
		{in: "", want: Fallback},
		{in: "!!!", want: Fallback},
		{in: "___", want: Fallback},
		{in: "   ", want: Fallback},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestNormalizeIsIdempotentAndWellFormed(t *testing.T) {
	property := func(s string) bool {
		once := Normalize(s)
		return Normalize(once) == once && slugShape.MatchString(once)
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 2000}); err != nil {
		t.Fatalf("property failed: %v", err)
	}
}

func TestMakeUniqueSequentialSuffixes(t *testing.T) {
	checker := newSetChecker()
	gen := NewGenerator(checker)
	ctx := context.Background()

	want := []string{"demo", "demo-1", "demo-2", "demo-3"}
	for i, expected := range want {
		got, err := gen.MakeUnique(ctx, "demo", "user-1")
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if got != expected {
			t.Fatalf("call %d: expected %q, got %q", i, expected, got)
		}
		checker.taken["user-1/"+got] = true
	}
}

func TestMakeUniqueIsScopedByOwner(t *testing.T) {
	checker := newSetChecker("user-1/demo")
	got, err := NewGenerator(checker).MakeUnique(context.Background(), "demo", "user-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "demo" {
		t.Fatalf("expected other owner's slug to be ignored, got %q", got)
	}
}

func TestMakeUniqueTruncatesBase(t *testing.T) {
	long := strings.Repeat("a", 60)
	gen := NewGenerator(newSetChecker())
	got, err := gen.MakeUnique(context.Background(), long, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != DefaultMaxLength-suffixReserve {
		t.Fatalf("expected base truncated to %d, got %d", DefaultMaxLength-suffixReserve, len(got))
	}

	checker := newSetChecker("abcdefghij")
	got, err = NewGenerator(checker).WithMaxLength(20).MakeUnique(context.Background(), "abcdefghijklmnopqrstuvwxyz", "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "abcdefghij-1" {
		t.Fatalf("expected abcdefghij-1, got %q", got)
	}
	if len(got) > 20 {
		t.Fatalf("expected slug within max length, got %d", len(got))
	}
}

func TestMakeUniqueDropsDanglingHyphenOnTruncate(t *testing.T) {
	base := strings.Repeat("a", 39) + "-bbbb"
	got, err := NewGenerator(newSetChecker()).MakeUnique(context.Background(), base, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != strings.Repeat("a", 39) {
		t.Fatalf("expected trailing hyphen trimmed, got %q", got)
	}
}

func TestMakeUniqueEscapeHatch(t *testing.T) {
	probes := 0
	always := CheckerFunc(func(ctx context.Context, scope, slug string) (bool, error) {
		probes++
		return true, nil
	})
	gen := NewGenerator(always)
	gen.newID = func() string { return "0123abcd-ef45-6789-0000-111122223333" }

	base := "abcdefghijklmnopqrstuvwxyz"
	got, err := gen.MakeUnique(context.Background(), base, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != base[:20]+"-0123abcd" {
		t.Fatalf("unexpected escape slug %q", got)
	}
	if probes != maxProbes {
		t.Fatalf("expected %d probes, got %d", maxProbes, probes)
	}
}

func TestMakeUniqueEscapeHatchUsesRandomHex(t *testing.T) {
	always := CheckerFunc(func(ctx context.Context, scope, slug string) (bool, error) { return true, nil })
	got, err := NewGenerator(always).MakeUnique(context.Background(), "demo", "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !regexp.MustCompile(`^demo-[0-9a-f]{8}$`).MatchString(got) {
		t.Fatalf("unexpected escape slug %q", got)
	}
}

func TestMakeUniquePropagatesCheckerError(t *testing.T) {
	boom := errors.New("db down")
	checker := newSetChecker()
	checker.err = boom
	if _, err := NewGenerator(checker).MakeUnique(context.Background(), "demo", "u"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped checker error, got %v", err)
	}
}

func TestMakeUniqueEmptyBaseFallsBack(t *testing.T) {
	got, err := NewGenerator(newSetChecker()).MakeUnique(context.Background(), "", "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Fallback {
		t.Fatalf("expected fallback slug, got %q", got)
	}
}
