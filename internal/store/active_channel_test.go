package store

import (
	"testing"

	"github.com/nickgerrer/stream-proxy/internal/domain"
)

func TestActiveChannelClientBookkeeping(t *testing.T) {
	ac := NewActiveChannel(1, 100, "http://u", nil, func() {})

	c1 := domain.NewClientState("a", "1.1.1.1", 0)
	c2 := domain.NewClientState("b", "2.2.2.2", 0)

	ac.AddClient(c1)
	ac.AddClient(c2)
	if ac.ClientCount() != 2 {
		t.Fatalf("expected 2 clients, got %d", ac.ClientCount())
	}

	remaining := ac.RemoveClient("a")
	if remaining != 1 {
		t.Fatalf("expected 1 remaining after removal, got %d", remaining)
	}
	if ac.ClientCount() != 1 {
		t.Fatalf("expected count=1, got %d", ac.ClientCount())
	}

	clients := ac.Clients()
	if len(clients) != 1 || clients[0].ID != "b" {
		t.Fatalf("unexpected remaining clients: %+v", clients)
	}
}

func TestActiveChannelRemoveClientTwiceIsSafe(t *testing.T) {
	ac := NewActiveChannel(1, 100, "http://u", nil, func() {})
	c := domain.NewClientState("a", "1.1.1.1", 0)
	ac.AddClient(c)

	ac.RemoveClient("a")
	remaining := ac.RemoveClient("a") // already gone
	if remaining != 0 {
		t.Fatalf("expected count to stay at 0, got %d", remaining)
	}
}

func TestActiveChannelSetUpstreamUpdatesTriple(t *testing.T) {
	ac := NewActiveChannel(1, 100, "http://a", nil, func() {})
	ac.SetUpstream(2, 200, "http://b")

	streamID, accountID, url := ac.Upstream()
	if streamID != 2 || accountID != 200 || url != "http://b" {
		t.Fatalf("unexpected upstream after SetUpstream: %d %d %q", streamID, accountID, url)
	}
}
