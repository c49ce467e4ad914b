package memory

import (
	"math"
	"reflect"
	"testing"
)

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestHashEmbedder_UnitNorm(t *testing.T) {
	e := NewHashEmbedder(0)
	if e.Dims() != DefaultEmbeddingDims {
		t.Fatalf("Dims = %d, want %d", e.Dims(), DefaultEmbeddingDims)
	}

	texts := []string{
		"Deploy the gateway on Friday",
		"ünïcödé wörds and 数字 123",
		"repeat repeat repeat repeat",
		"snake_case and kebab-case identifiers",
	}
	for _, text := range texts {
		v := e.Embed(text)
		if len(v) != DefaultEmbeddingDims {
			t.Fatalf("len = %d", len(v))
		}
		if n := vectorNorm(v); math.Abs(n-1) > 1e-5 {
			t.Errorf("norm(%q) = %f, want 1", text, n)
		}
	}
}

func TestHashEmbedder_ZeroSignal(t *testing.T) {
	e := NewHashEmbedder(0)
	for _, text := range []string{"", "   ", "the a an of", "a b c", "!!! ???"} {
		v := e.Embed(text)
		if len(v) != DefaultEmbeddingDims {
			t.Fatalf("len = %d", len(v))
		}
		if !IsZeroVector(v) {
			t.Errorf("Embed(%q) should be the zero vector", text)
		}
	}
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	a := NewHashEmbedder(0).Embed("release checklist for the billing service")
	b := NewHashEmbedder(0).Embed("release checklist for the billing service")
	if !reflect.DeepEqual(a, b) {
		t.Error("same text produced different embeddings")
	}

	c := NewHashEmbedder(0).Embed("completely unrelated gardening notes")
	if reflect.DeepEqual(a, c) {
		t.Error("different text produced identical embeddings")
	}
}

func TestHashEmbedder_SimilarTextScoresHigher(t *testing.T) {
	e := NewHashEmbedder(0)
	q := e.Embed("database migration")
	near := e.Embed("notes on the database migration plan")
	far := e.Embed("weekend hiking trip photos")

	if CosineSimilarity(q, near) <= CosineSimilarity(q, far) {
		t.Errorf("expected related text to score higher: near=%f far=%f",
			CosineSimilarity(q, near), CosineSimilarity(q, far))
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("The Quick-brown fox, and a x_y token -dash- 42 z")
	want := []string{"quick-brown", "fox", "x_y", "token", "dash", "42"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenizeFoldsCompatibilityForms(t *testing.T) {
	got := Tokenize("\uFF24\uFF45\uFF50\uFF4C\uFF4F\uFF59 plan")
	want := []string{"deploy", "plan"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}
