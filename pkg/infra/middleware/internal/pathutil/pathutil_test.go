package pathutil

import "testing"

func TestNewPathMatcher(t *testing.T) {
	match := NewPathMatcher([]string{"/healthz"}, []string{"/debug/", ""})

	cases := map[string]bool{
		"/healthz":     true,
		"/healthz/x":   false,
		"/debug/pprof": true,
		"/api":         false,
		"/":            false,
	}
	for path, want := range cases {
		if got := match(path); got != want {
			t.Errorf("match(%q) = %v, want %v", path, got, want)
		}
	}
}
