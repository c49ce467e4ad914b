package tokens

import (
	"strings"
	"testing"
)

func TestApprox(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := Approx(tt.text); got != tt.want {
			t.Errorf("Approx(%d bytes) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}

func TestEstimatorUnknownEncodingFallsBack(t *testing.T) {
	e := NewEstimator("no-such-encoding")
	if e.Exact() {
		t.Fatal("unknown encoding reported exact counts")
	}
	text := "the quick brown fox"
	if got := e.Count(text); got != Approx(text) {
		t.Errorf("Count = %d, want heuristic %d", got, Approx(text))
	}
}

func TestEstimatorEmpty(t *testing.T) {
	if got := NewEstimator("").Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d", got)
	}
}

func TestEstimatorDefaultEncoding(t *testing.T) {
	e := NewEstimator("")
	if !e.Exact() {
		t.Skip("cl100k_base not loadable in this environment")
	}
	if got := e.Count("hello world"); got != 2 {
		t.Errorf("Count(hello world) = %d, want 2", got)
	}
}
