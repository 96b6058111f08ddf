package branchname

import "testing"

func TestValid(t *testing.T) {
	cases := map[string]bool{
		"main":          true,
		"feature/login": true,
		"":              false,
		"-oops":         false,
		".hidden":       false,
		"a..b":          false,
		"x@{y":          false,
		"trailing.":     false,
		"foo.lock":      false,
		"with space":    false,
		"with\ttab":     false,
	}
	for name, want := range cases {
		if got := Valid(name); got != want {
			t.Errorf("Valid(%q) = %v, want %v", name, got, want)
		}
	}
}
