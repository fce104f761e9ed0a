package testutil

import (
	"strings"
	"testing"
)

// AssertEqualSlices fails t unless got holds exactly want, in order. A length
// mismatch is reported once instead of per position.
func AssertEqualSlices[T comparable](t *testing.T, got []T, want ...T) {
	t.Helper()
	compareInOrder(t, "%v", got, want)
}

// AssertStrings is AssertEqualSlices for strings, quoting every value so
// whitespace differences show up in the failure.
func AssertStrings(t *testing.T, got []string, want ...string) {
	t.Helper()
	compareInOrder(t, "%q", got, want)
}

func compareInOrder[T comparable](t *testing.T, verb string, got, want []T) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("len = %d, want %d; got "+verb+", want "+verb, len(got), len(want), got, want)
		return
	}
	for i, g := range got {
		if g != want[i] {
			t.Errorf("[%d] = "+verb+", want "+verb, i, g, want[i])
		}
	}
}

// AssertContainsAll reports each of subs missing from got.
func AssertContainsAll(t *testing.T, got string, subs ...string) {
	t.Helper()
	for _, sub := range subs {
		if !strings.Contains(got, sub) {
			t.Errorf("missing %q in %q", sub, got)
		}
	}
}

// MustNoErr stops the test when err is set, prefixing the failure with what
// was being attempted.
func MustNoErr(t *testing.T, err error, what string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", what, err)
	}
}
