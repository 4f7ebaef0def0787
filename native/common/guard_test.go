package common

import (
	"errors"
	"testing"
)

func TestGuard(t *testing.T) {
	if err := Guard(nil, "issuance"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	set := NewPauseSet(" Issuance ")
	if err := Guard(set, "issuance"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(set, "rewards"); err != nil {
		t.Fatalf("rewards should not be paused: %v", err)
	}
	set.Set("rewards", true)
	set.Set("issuance", false)
	if got := set.Paused(); len(got) != 1 || got[0] != "rewards" {
		t.Fatalf("unexpected paused set %v", got)
	}
}
