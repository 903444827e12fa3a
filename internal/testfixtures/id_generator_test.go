package testfixtures

import "testing"

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("series")

	first := gen.Next()
	second := gen.Next()

	if first != "series-1" || second != "series-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
}

func TestIDGeneratorCanReset(t *testing.T) {
	gen := NewIDGenerator("occurrence")
	_ = gen.Next()
	gen.SetCounter(0)
	gen.SetPrefix("occ")

	if next := gen.Next(); next != "occ-1" {
		t.Fatalf("expected occ-1 after reset, got %q", next)
	}
}
