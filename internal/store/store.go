// Package store holds the process-global shared state: routing tables,
// accounts, and live channels, plus the selection policy and control-plane
// mutators that operate on them. All three maps support concurrent access
// without an external lock, backed by sync.Map the way the teacher's
// connection and subscription tables are.
package store

import (
	"sync"
	"time"

	"github.com/nickgerrer/stream-proxy/internal/domain"
)

// AppState is the process-global shared state described by the data model:
// channel routing, live channels, and account quotas.
type AppState struct {
	startTime time.Time

	routes   sync.Map // map[string]*domain.ChannelRouting
	active   sync.Map // map[string]*ActiveChannel
	accounts sync.Map // map[uint64]*domain.AccountState
}

// New creates an empty AppState stamped with the current time as its start
// time for uptime reporting.
func New() *AppState {
	return &AppState{startTime: time.Now()}
}

// StartTime returns when this AppState was created.
func (s *AppState) StartTime() time.Time {
	return s.startTime
}

// --- routing -----------------------------------------------------------

// GetRoute returns the routing configured for a channel id, if any.
func (s *AppState) GetRoute(channelID string) (*domain.ChannelRouting, bool) {
	v, ok := s.routes.Load(channelID)
	if !ok {
		return nil, false
	}
	return v.(*domain.ChannelRouting), true
}

// PutChannelRoute replaces the routing for a channel id. It does not disturb
// any Active Channel already running for the id; the new routing only takes
// effect at the next selection (a new client, or the next failover).
func (s *AppState) PutChannelRoute(channelID string, routing *domain.ChannelRouting) {
	s.routes.Store(channelID, routing)
}

// DeleteChannelRoute removes a channel's routing and, if an Active Channel
// exists for it, removes that too and returns it so the caller can stop it.
// Route and active-map removal both happen synchronously within this call;
// the returned channel's own goroutine releases its account slot shortly
// after observing the stop signal (see ActiveChannel.Stop), not here, so a
// concurrent Sync or a second Delete can never double-release the same slot.
func (s *AppState) DeleteChannelRoute(channelID string) (removed *ActiveChannel, hadRoute bool) {
	_, hadRoute = s.routes.LoadAndDelete(channelID)
	if v, ok := s.active.LoadAndDelete(channelID); ok {
		removed = v.(*ActiveChannel)
	}
	return removed, hadRoute
}

// --- active channels -----------------------------------------------------

// GetActiveChannel returns the live Active Channel for a channel id, if any.
func (s *AppState) GetActiveChannel(channelID string) (*ActiveChannel, bool) {
	v, ok := s.active.Load(channelID)
	if !ok {
		return nil, false
	}
	return v.(*ActiveChannel), true
}

// RegisterActiveChannel makes a freshly started Active Channel discoverable
// by new client requests.
func (s *AppState) RegisterActiveChannel(channelID string, ac *ActiveChannel) {
	s.active.Store(channelID, ac)
}

// RemoveActiveChannel removes ac from the active set, but only if it is
// still the channel registered under channelID. This makes the Upstream
// Engine's own exit-time cleanup idempotent against a control-plane Delete
// or Sync that already removed (and possibly replaced) the entry.
func (s *AppState) RemoveActiveChannel(channelID string, ac *ActiveChannel) {
	s.active.CompareAndDelete(channelID, ac)
}

// ActiveChannelIDs returns the ids of all currently live Active Channels.
// Iteration is best-effort, not a consistent snapshot.
func (s *AppState) ActiveChannelIDs() []string {
	var ids []string
	s.active.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	return ids
}

// RouteIDs returns the ids of all currently routed channels.
func (s *AppState) RouteIDs() []string {
	var ids []string
	s.routes.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	return ids
}

// --- accounts --------------------------------------------------------------

// GetAccount returns the account state for an id, if known. An unknown
// account is treated as unlimited by the selection policy, not as absent
// quota tracking.
func (s *AppState) GetAccount(accountID uint64) (*domain.AccountState, bool) {
	v, ok := s.accounts.Load(accountID)
	if !ok {
		return nil, false
	}
	return v.(*domain.AccountState), true
}

// PutAccount upserts an account's connection ceiling. If the account already
// exists, only MaxConnections changes; ActiveConnections is preserved. If it
// doesn't exist, it is created with ActiveConnections == 0.
func (s *AppState) PutAccount(accountID uint64, max uint32) {
	if v, ok := s.accounts.Load(accountID); ok {
		v.(*domain.AccountState).SetMax(max)
		return
	}
	s.accounts.Store(accountID, domain.NewAccountState(max))
}

// AccountIDs returns all known account ids.
func (s *AppState) AccountIDs() []uint64 {
	var ids []uint64
	s.accounts.Range(func(k, _ any) bool {
		ids = append(ids, k.(uint64))
		return true
	})
	return ids
}

// IncrementConnections charges one upstream fetch against an account. If the
// account is not registered, this is a silent no-op: an unregistered account
// is unlimited and untracked, not materialized on first use.
func (s *AppState) IncrementConnections(accountID uint64) {
	if v, ok := s.accounts.Load(accountID); ok {
		v.(*domain.AccountState).Increment()
	}
}

// DecrementConnections releases one upstream fetch from an account. If the
// account is no longer known (removed by a Sync), this is a silent no-op:
// there is nothing left to underflow.
func (s *AppState) DecrementConnections(accountID uint64) {
	if v, ok := s.accounts.Load(accountID); ok {
		v.(*domain.AccountState).Decrement()
	}
}

// accountAdmissible reports whether accountID may be charged one more
// upstream fetch: unknown accounts are unlimited.
func (s *AppState) accountAdmissible(accountID uint64) bool {
	acc, ok := s.GetAccount(accountID)
	if !ok {
		return true
	}
	return acc.Admissible()
}

// --- selection -------------------------------------------------------------

// SelectStream walks a channel's routing in declaration order (streams, then
// urls within each stream) and returns the first admissible pair.
func (s *AppState) SelectStream(channelID string) (streamID, accountID uint64, url string, ok bool) {
	routing, found := s.GetRoute(channelID)
	if !found {
		return 0, 0, "", false
	}
	for _, stream := range routing.Streams {
		for _, su := range stream.URLs {
			if s.accountAdmissible(su.AccountID) {
				return stream.ID, su.AccountID, su.URL, true
			}
		}
	}
	return 0, 0, "", false
}

// SelectNextStream walks the same ordering, skipping every pair up to and
// including the one matching (failedStreamID, failedAccountID), and returns
// the first admissible pair strictly after it.
//
// The cursor is positional in the current routing snapshot, not a saved
// iterator: if routing has changed since the failed fetch started and the
// failed pair is no longer present, no pair is returned (fail closed).
func (s *AppState) SelectNextStream(channelID string, failedStreamID, failedAccountID uint64) (streamID, accountID uint64, url string, ok bool) {
	routing, found := s.GetRoute(channelID)
	if !found {
		return 0, 0, "", false
	}
	passedFailed := false
	for _, stream := range routing.Streams {
		for _, su := range stream.URLs {
			if !passedFailed {
				if stream.ID == failedStreamID && su.AccountID == failedAccountID {
					passedFailed = true
				}
				continue
			}
			if s.accountAdmissible(su.AccountID) {
				return stream.ID, su.AccountID, su.URL, true
			}
		}
	}
	return 0, 0, "", false
}

// --- bulk reconciliation ----------------------------------------------------

// SyncResult reports the Active Channels that a Sync stopped because their
// channel id was no longer present in the payload.
type SyncResult struct {
	Stopped []*ActiveChannel
}

// Sync performs bulk reconciliation of routes and accounts against a
// control-plane snapshot. It is additive for live channels: an id still
// present in the payload is never stopped and its quotas are never reset,
// even if its configuration is byte-identical to what's already stored.
func (s *AppState) Sync(channels map[string]*domain.ChannelRouting, accountMax map[uint64]uint32) SyncResult {
	newIDs := make(map[string]struct{}, len(channels))
	for id := range channels {
		newIDs[id] = struct{}{}
	}

	var result SyncResult
	s.routes.Range(func(k, _ any) bool {
		id := k.(string)
		if _, keep := newIDs[id]; keep {
			return true
		}
		s.routes.Delete(id)
		if v, ok := s.active.LoadAndDelete(id); ok {
			result.Stopped = append(result.Stopped, v.(*ActiveChannel))
		}
		return true
	})

	for id, routing := range channels {
		s.routes.Store(id, routing)
	}

	s.accounts.Range(func(k, _ any) bool {
		id := k.(uint64)
		if _, keep := accountMax[id]; !keep {
			s.accounts.Delete(id)
		}
		return true
	})

	for id, max := range accountMax {
		s.PutAccount(id, max)
	}

	return result
}
