package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nickgerrer/stream-proxy/internal/broadcast"
	"github.com/nickgerrer/stream-proxy/internal/domain"
)

// ActiveChannel is live state for a channel currently holding an upstream
// fetch and zero-or-more subscribers. Only the Upstream Engine goroutine that
// owns it mutates streamID/accountID/url (on failover); everyone else reads
// them for status reporting only. A mutex (rather than atomics) protects the
// triple so readers never observe a torn combination, which is stronger than
// the spec requires but costs nothing on this hot path.
type ActiveChannel struct {
	mu        sync.RWMutex
	streamID  uint64
	accountID uint64
	url       string

	connectedSince   time.Time
	bytesTransferred atomic.Uint64

	bus    *broadcast.Bus
	cancel context.CancelFunc

	clients     sync.Map // map[string]*domain.ClientState
	clientCount atomic.Int64
}

// NewActiveChannel constructs an ActiveChannel bound to its first upstream
// selection.
func NewActiveChannel(streamID, accountID uint64, url string, bus *broadcast.Bus, cancel context.CancelFunc) *ActiveChannel {
	return &ActiveChannel{
		streamID:       streamID,
		accountID:      accountID,
		url:            url,
		connectedSince: time.Now(),
		bus:            bus,
		cancel:         cancel,
	}
}

// Upstream returns the currently connected (stream, account, url) triple.
func (a *ActiveChannel) Upstream() (streamID, accountID uint64, url string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.streamID, a.accountID, a.url
}

// SetUpstream is called by the owning Upstream Engine after a successful
// failover to a new (stream, account, url) triple.
func (a *ActiveChannel) SetUpstream(streamID, accountID uint64, url string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.streamID = streamID
	a.accountID = accountID
	a.url = url
}

// AccountID returns the account currently charged for this channel's
// upstream slot.
func (a *ActiveChannel) AccountID() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.accountID
}

// StreamID returns the stream currently feeding this channel.
func (a *ActiveChannel) StreamID() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.streamID
}

// ConnectedSince returns when this Active Channel was created for its first
// upstream selection; a failover does not update it.
func (a *ActiveChannel) ConnectedSince() time.Time {
	return a.connectedSince
}

// Bus returns the broadcast bus chunks are published to and subscribed from.
func (a *ActiveChannel) Bus() *broadcast.Bus {
	return a.bus
}

// Stop fires the channel's stop signal. The Upstream Engine observes this at
// its next interruption point and exits.
func (a *ActiveChannel) Stop() {
	a.cancel()
}

// AddBytesTransferred accrues bytes read from the current upstream.
func (a *ActiveChannel) AddBytesTransferred(n uint64) {
	a.bytesTransferred.Add(n)
}

// BytesTransferred returns the total bytes read from upstream across the
// life of this Active Channel (including before any failover).
func (a *ActiveChannel) BytesTransferred() uint64 {
	return a.bytesTransferred.Load()
}

// AddClient registers a newly attached subscriber.
func (a *ActiveChannel) AddClient(c *domain.ClientState) {
	a.clients.Store(c.ID, c)
	a.clientCount.Add(1)
}

// RemoveClient detaches a subscriber and returns the number of clients still
// attached afterward.
func (a *ActiveChannel) RemoveClient(id string) int64 {
	if _, ok := a.clients.LoadAndDelete(id); ok {
		return a.clientCount.Add(-1)
	}
	return a.clientCount.Load()
}

// ClientCount returns the number of currently attached subscribers.
func (a *ActiveChannel) ClientCount() int64 {
	return a.clientCount.Load()
}

// Clients returns a point-in-time slice of attached clients. Iteration is
// best-effort, not a consistent snapshot, matching the rest of the status
// surface.
func (a *ActiveChannel) Clients() []*domain.ClientState {
	out := make([]*domain.ClientState, 0, a.clientCount.Load())
	a.clients.Range(func(_, v any) bool {
		out = append(out, v.(*domain.ClientState))
		return true
	})
	return out
}
