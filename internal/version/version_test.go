package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	s := String()
	if !strings.HasPrefix(s, Version+" ("+Commit) {
		t.Errorf("String() = %q, want prefix %q", s, Version+" ("+Commit)
	}
}

func TestInfo(t *testing.T) {
	info := Info()
	for _, key := range []string{"version", "commit", "go"} {
		if info[key] == "" {
			t.Errorf("Info()[%q] is empty", key)
		}
	}
}
