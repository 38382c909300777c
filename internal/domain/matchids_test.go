package domain

import "testing"

func TestMatchIDs_Value(t *testing.T) {
	v, err := MatchIDs(nil).Value()
	if err != nil || v != "" {
		t.Fatalf("nil Value = %v, %v", v, err)
	}

	v, err = MatchIDs{"a", "b"}.Value()
	if err != nil || v != "a,b" {
		t.Fatalf("Value = %v, %v", v, err)
	}
}

func TestMatchIDs_Scan(t *testing.T) {
	var m MatchIDs
	if err := m.Scan("a, b ,,c"); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if len(m) != 3 || m[0] != "a" || m[1] != "b" || m[2] != "c" {
		t.Fatalf("scan string = %v", m)
	}

	if err := m.Scan([]byte("x,y")); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	if len(m) != 2 || m[0] != "x" {
		t.Fatalf("scan bytes = %v", m)
	}

	if err := m.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if m != nil {
		t.Fatalf("scan nil should reset, got %v", m)
	}

	if err := m.Scan(""); err != nil {
		t.Fatalf("scan empty: %v", err)
	}
	if m != nil {
		t.Fatalf("scan empty should yield nil, got %v", m)
	}

	if err := m.Scan(42); err == nil {
		t.Fatalf("expected error for unsupported source type")
	}
}
