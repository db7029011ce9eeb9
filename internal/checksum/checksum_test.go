package checksum

import "testing"

func TestSum_Stable(t *testing.T) {
	a := Sum([]byte("# Title\nbody"))
	b := String("# Title\nbody")
	if a != b {
		t.Fatalf("Sum and String disagree: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64 hex chars", len(a))
	}
}

func TestSum_DiffersOnContent(t *testing.T) {
	if Sum([]byte("a")) == Sum([]byte("b")) {
		t.Error("different inputs produced the same digest")
	}
}
