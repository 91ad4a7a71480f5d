package domain

import "testing"

func TestAccountStateAdmissibleUnlimited(t *testing.T) {
	a := NewAccountState(0)
	for i := 0; i < 100; i++ {
		a.Increment()
	}
	if !a.Admissible() {
		t.Fatal("expected unlimited account to remain admissible")
	}
}

func TestAccountStateAdmissibleAtCeiling(t *testing.T) {
	a := NewAccountState(2)
	if !a.Admissible() {
		t.Fatal("expected admissible below ceiling")
	}
	a.Increment()
	if !a.Admissible() {
		t.Fatal("expected admissible at 1/2")
	}
	a.Increment()
	if a.Admissible() {
		t.Fatal("expected inadmissible at 2/2")
	}
}

func TestAccountStateDecrementFloorsAtZero(t *testing.T) {
	a := NewAccountState(5)
	a.Decrement()
	a.Decrement()
	if a.Active() != 0 {
		t.Fatalf("expected active=0, got %d", a.Active())
	}
}

func TestAccountStateSetMaxPreservesActive(t *testing.T) {
	a := NewAccountState(1)
	a.Increment()
	a.SetMax(10)
	if a.Active() != 1 {
		t.Fatalf("expected active to survive SetMax, got %d", a.Active())
	}
	if a.Max() != 10 {
		t.Fatalf("expected max=10, got %d", a.Max())
	}
}

func TestClientStateAccruesBytes(t *testing.T) {
	c := NewClientState("client1", "127.0.0.1:1234", 0)
	c.AddBytesSent(100)
	c.AddBytesSent(50)
	if c.BytesSent() != 150 {
		t.Fatalf("expected 150 bytes sent, got %d", c.BytesSent())
	}
}
