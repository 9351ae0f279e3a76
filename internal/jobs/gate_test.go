package jobs

import "testing"

func TestGateOwnerCap(t *testing.T) {
	gate := NewGate(10, func(string) int { return 2 })

	if !gate.TryAcquire("alice") {
		t.Fatal("first acquire refused")
	}
	if !gate.TryAcquire("alice") {
		t.Fatal("second acquire refused under cap 2")
	}
	if gate.TryAcquire("alice") {
		t.Fatal("third acquire granted over cap 2")
	}
	// Another owner is unaffected by alice's cap.
	if !gate.TryAcquire("bob") {
		t.Fatal("other owner refused")
	}

	gate.Release("alice")
	if !gate.TryAcquire("alice") {
		t.Fatal("acquire refused after release")
	}
}

func TestGateGlobalCap(t *testing.T) {
	gate := NewGate(2, func(string) int { return 10 })

	if !gate.TryAcquire("a") || !gate.TryAcquire("b") {
		t.Fatal("acquires refused under global cap")
	}
	if gate.TryAcquire("c") {
		t.Fatal("acquire granted over global cap")
	}

	gate.Release("a")
	if !gate.TryAcquire("c") {
		t.Fatal("acquire refused after global slot freed")
	}
}

func TestGateReleaseWithoutAcquire(t *testing.T) {
	gate := NewGate(1, func(string) int { return 1 })

	// A stray release must not free slots that were never held.
	gate.Release("ghost")
	if !gate.TryAcquire("a") {
		t.Fatal("acquire refused")
	}
	if gate.TryAcquire("b") {
		t.Fatal("stray release manufactured a slot")
	}
}

func TestGateZeroCapTreatedAsOne(t *testing.T) {
	gate := NewGate(10, func(string) int { return 0 })

	if !gate.TryAcquire("a") {
		t.Fatal("zero cap should fall back to 1")
	}
	if gate.TryAcquire("a") {
		t.Fatal("second acquire granted under fallback cap 1")
	}
}
