package logging

import "testing"

func TestNewValidLevel(t *testing.T) {
	log, err := New("info", "console", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log == nil {
		t.Fatal("expected a non-nil logger")
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New("not-a-level", "console", false); err == nil {
		t.Fatal("expected an error for an invalid level")
	}
}

func TestNewProductionFormat(t *testing.T) {
	log, err := New("error", "json", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log == nil {
		t.Fatal("expected a non-nil logger")
	}
}

func TestNop(t *testing.T) {
	if Nop() == nil {
		t.Fatal("expected Nop to return a non-nil logger")
	}
}
