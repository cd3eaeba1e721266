package core

import "testing"

func TestSignalCoalesces(t *testing.T) {
	sig := NewSignal()
	sig.Raise()
	sig.Raise()
	sig.Raise()

	select {
	case <-sig.C():
	default:
		t.Fatalf("expected a pending wake")
	}
	select {
	case <-sig.C():
		t.Fatalf("expected raises to coalesce into one wake")
	default:
	}
}

func TestSignalRearmsAfterDrain(t *testing.T) {
	sig := NewSignal()
	sig.Raise()
	<-sig.C()

	// A mutation between the drain and the next wait must not be lost.
	sig.Raise()
	select {
	case <-sig.C():
	default:
		t.Fatalf("expected wake after re-arm")
	}
}

func TestSignalNilSafe(t *testing.T) {
	var sig *Signal
	sig.Raise()
	if sig.Pending() {
		t.Fatalf("nil signal reported pending")
	}
}

func TestSignalPending(t *testing.T) {
	sig := NewSignal()
	if sig.Pending() {
		t.Fatalf("fresh signal should not be pending")
	}
	sig.Raise()
	if !sig.Pending() {
		t.Fatalf("raised signal should be pending")
	}
	<-sig.C()
	if sig.Pending() {
		t.Fatalf("drained signal should not be pending")
	}
}
