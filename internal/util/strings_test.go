package util

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a@x.com", "a@x.com"},
		{"  U@X.Com ", "u@x.com"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTrimHelpers(t *testing.T) {
	if v, ok := TrimEmptyCheck("   "); ok || v != "" {
		t.Errorf("TrimEmptyCheck blank = %q,%v", v, ok)
	}
	if v := TrimWithDefault(" ", "sqlite"); v != "sqlite" {
		t.Errorf("TrimWithDefault = %q", v)
	}
	if v := TrimAndLower(" PostgreSQL "); v != "postgresql" {
		t.Errorf("TrimAndLower = %q", v)
	}
	fields := TrimSpaceFields(" a ", "b ")
	if fields[0] != "a" || fields[1] != "b" {
		t.Errorf("TrimSpaceFields = %v", fields)
	}
}

func TestJoinNonEmpty(t *testing.T) {
	if got := JoinNonEmpty(" ", "Mrs", "", " Jane ", "Doe"); got != "Mrs Jane Doe" {
		t.Errorf("JoinNonEmpty = %q", got)
	}
	if got := JoinNonEmpty(" "); got != "" {
		t.Errorf("JoinNonEmpty() = %q", got)
	}
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 10, "abc"},
		{"exact", "abc", 3, "abc"},
		{"ascii cut", "abcdef", 4, "abcd"},
		{"cut inside two-byte rune", "aé", 2, "a"},
		{"cut after two-byte rune", "aéb", 3, "aé"},
		{"cut inside four-byte rune", "ab🌲", 5, "ab"},
		{"invalid bytes replaced", "a\xffb", 10, "a\uFFFDb"},
		{"zero", "abc", 0, ""},
	}
	for _, tt := range tests {
		got := TruncateUTF8(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("%s: TruncateUTF8(%q, %d) = %q, want %q", tt.name, tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("%s: result %q is not valid UTF-8", tt.name, got)
		}
	}

	long := strings.Repeat("a", 1999) + "é tail"
	got := TruncateUTF8(long, 2000)
	if len(got) != 1999 || !utf8.ValidString(got) {
		t.Errorf("long reason: len=%d valid=%v", len(got), utf8.ValidString(got))
	}
}
