package useragent

import "testing"

func TestRotatorCycles(t *testing.T) {
	r := NewRotator("ua-1", "ua-2")
	seq := []string{r.Next(), r.Next(), r.Next()}
	expected := []string{"ua-1", "ua-2", "ua-1"}
	for i := range expected {
		if seq[i] != expected[i] {
			t.Errorf("call %d: got %q, want %q", i, seq[i], expected[i])
		}
	}
}

func TestRotatorDefaults(t *testing.T) {
	r := NewRotator()
	if r.Next() == "" {
		t.Error("default rotator should produce a non-empty agent")
	}
}
