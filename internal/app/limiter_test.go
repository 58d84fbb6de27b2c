package app

import "testing"

func TestDynamicLimiter_TryAcquire(t *testing.T) {
	l := NewDynamicLimiter(1)

	if !l.TryAcquire() {
		t.Fatalf("first acquire should succeed")
	}
	if l.TryAcquire() {
		t.Fatalf("second acquire should fail without blocking")
	}

	l.Release()
	if !l.TryAcquire() {
		t.Fatalf("acquire after release should succeed")
	}
	l.Release()
}

func TestDynamicLimiter_SetLimitOpensSlots(t *testing.T) {
	l := NewDynamicLimiter(1)

	if !l.TryAcquire() {
		t.Fatalf("first acquire should succeed")
	}
	if l.TryAcquire() {
		t.Fatalf("limit 1 must refuse a second slot")
	}

	l.SetLimit(2)
	if !l.TryAcquire() {
		t.Fatalf("raising the limit should open a slot")
	}

	// Baisser le plafond n'expulse pas les slots déjà pris.
	l.SetLimit(1)
	if l.InFlight() != 2 {
		t.Fatalf("InFlight = %d, want 2", l.InFlight())
	}
	if l.TryAcquire() {
		t.Fatalf("lowered limit must refuse new slots")
	}

	l.Release()
	l.Release()
}

func TestDynamicLimiter_FloorsAtOne(t *testing.T) {
	l := NewDynamicLimiter(0)
	if l.Limit() != 1 {
		t.Fatalf("Limit = %d, want 1", l.Limit())
	}
	l.SetLimit(-3)
	if l.Limit() != 1 {
		t.Fatalf("Limit after SetLimit(-3) = %d, want 1", l.Limit())
	}
}
