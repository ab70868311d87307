package workspace

import (
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Fix login bug", "fix-login-bug"},
		{"punctuation collapses", "Hello World!!!", "hello-world"},
		{"surrounding spaces", "  spaces  ", "spaces"},
		{"mixed separators", "feat: add / remove users", "feat-add-remove-users"},
		{"uppercase", "UPPER case Title", "upper-case-title"},
		{"digits kept", "migrate to v2", "migrate-to-v2"},
		{"only punctuation", "!!!", "task"},
		{"empty", "", "task"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.input); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSlugifyCapsLength(t *testing.T) {
	long := strings.Repeat("abcde ", 20)
	slug := Slugify(long)
	if len(slug) > 50 {
		t.Errorf("slug should be capped at 50 chars, got %d: %q", len(slug), slug)
	}
	if strings.HasSuffix(slug, "-") {
		t.Errorf("capped slug should not end with a hyphen: %q", slug)
	}
}

func TestBranchName(t *testing.T) {
	got := BranchName("Fix login bug", "a1b2c3d4-e5f6-7890-abcd-ef0123456789")
	want := "tf/fix-login-bug-a1b2c3d4"
	if got != want {
		t.Errorf("BranchName = %q, want %q", got, want)
	}
}

func TestDirName(t *testing.T) {
	got := DirName("Fix login bug", "a1b2c3d4-e5f6-7890-abcd-ef0123456789")
	want := "fix-login-bug-a1b2c3d4"
	if got != want {
		t.Errorf("DirName = %q, want %q", got, want)
	}
}

func TestShortIDHandlesShortInput(t *testing.T) {
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID should pass short IDs through, got %q", got)
	}
}

func TestProjectHashStable(t *testing.T) {
	a := projectHash("/home/dev/webapp")
	b := projectHash("/home/dev/webapp")
	if a != b {
		t.Error("hash should be deterministic")
	}
	if len(a) != 8 {
		t.Errorf("hash should be 8 hex chars, got %q", a)
	}
	if a == projectHash("/home/dev/other") {
		t.Error("different paths should hash differently")
	}
}
