package session

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"line one\nline two", "line one line two"},
		{"`code` and ```block```", "code and block"},
		{"  padded\t\tand   spaced  ", "padded and spaced"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChunksWordBoundaries(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog"
	chunks := Chunks(text, 15)
	for i, c := range chunks {
		if len(c) > 15 {
			t.Fatalf("chunk %d is %d bytes, max 15: %q", i, len(c), c)
		}
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
			t.Fatalf("chunk %d has boundary whitespace: %q", i, c)
		}
	}
	if got := strings.Join(chunks, " "); got != text {
		t.Fatalf("reassembled = %q, want %q", got, text)
	}
}

func TestChunksLongWord(t *testing.T) {
	word := strings.Repeat("x", 37)
	chunks := Chunks("start "+word+" end", 10)
	for i, c := range chunks {
		if len(c) > 10 {
			t.Fatalf("chunk %d is %d bytes, max 10", i, len(c))
		}
	}
	if got := strings.Join(chunks, ""); !strings.Contains(got, strings.Repeat("x", 37)) {
		t.Fatal("long word content lost in splitting")
	}
}

func TestChunksFitsInOne(t *testing.T) {
	chunks := Chunks("short reply", 450)
	if len(chunks) != 1 || chunks[0] != "short reply" {
		t.Fatalf("Chunks = %v, want single chunk", chunks)
	}
}
