package version

import (
	"strings"
	"testing"
)

func TestStringIncludesOverrides(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })

	Version, Commit = "1.2.3", "abc123"
	got := String()
	for _, want := range []string{"version: 1.2.3\n", "commit: abc123\n", "go: go"} {
		if !strings.Contains(got, want) {
			t.Fatalf("输出应包含 %q:\n%s", want, got)
		}
	}
}
