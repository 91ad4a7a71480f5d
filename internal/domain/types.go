// Package domain holds the plain value types shared by the store, control,
// and status packages: routing configuration and account quota state.
package domain

import "sync/atomic"

// StreamURL is one upstream endpoint bound to an account for quota purposes.
type StreamURL struct {
	AccountID uint64
	URL       string
}

// Stream is one variant within a channel. URLs is the failover order within
// this stream.
type Stream struct {
	ID   uint64
	URLs []StreamURL
}

// ChannelRouting is the full set of stream variants for one channel. The
// concatenation of (stream, url) pairs in declaration order is the global
// failover order for the channel.
type ChannelRouting struct {
	Streams []Stream
}

// AccountState is a quota bucket limiting the number of concurrent upstream
// fetches bound to an account. MaxConnections == 0 means unlimited.
// ActiveConnections counts live upstream fetches, not client sessions.
type AccountState struct {
	maxConnections    atomic.Uint32
	activeConnections atomic.Uint32
}

// NewAccountState builds an AccountState with zero active connections.
func NewAccountState(max uint32) *AccountState {
	a := &AccountState{}
	a.maxConnections.Store(max)
	return a
}

// Max returns the configured connection ceiling (0 = unlimited).
func (a *AccountState) Max() uint32 {
	return a.maxConnections.Load()
}

// SetMax updates the connection ceiling, leaving ActiveConnections untouched.
func (a *AccountState) SetMax(max uint32) {
	a.maxConnections.Store(max)
}

// Active returns the number of upstream fetches currently charged to this
// account.
func (a *AccountState) Active() uint32 {
	return a.activeConnections.Load()
}

// Admissible reports whether one more upstream fetch may be charged to this
// account: unlimited (max == 0) or strictly under the ceiling.
func (a *AccountState) Admissible() bool {
	max := a.maxConnections.Load()
	return max == 0 || a.activeConnections.Load() < max
}

// Increment charges one upstream fetch against this account.
func (a *AccountState) Increment() {
	a.activeConnections.Add(1)
}

// Decrement releases one upstream fetch, refusing to underflow below zero.
// This guards against a bulk Sync installing a fresh AccountState while an
// Upstream Engine still holds a reference to the prior one and later calls
// Decrement on teardown.
func (a *AccountState) Decrement() {
	for {
		cur := a.activeConnections.Load()
		if cur == 0 {
			return
		}
		if a.activeConnections.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// ClientState describes one attached HTTP subscriber for the duration of its
// response body.
type ClientState struct {
	ID             string
	ConnectedSince int64 // unix nanos from time.Now().UnixNano() (wall clock, not monotonic)
	RemoteAddr     string
	bytesSent      atomic.Uint64
}

// NewClientState creates a ClientState with a zeroed byte counter.
func NewClientState(id, remoteAddr string, connectedSince int64) *ClientState {
	return &ClientState{ID: id, RemoteAddr: remoteAddr, ConnectedSince: connectedSince}
}

// AddBytesSent accrues delivered bytes for this client.
func (c *ClientState) AddBytesSent(n uint64) {
	c.bytesSent.Add(n)
}

// BytesSent returns the total bytes delivered to this client so far.
func (c *ClientState) BytesSent() uint64 {
	return c.bytesSent.Load()
}
