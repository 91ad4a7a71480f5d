// Package session implements the data-plane client session: the
// /stream/{channel_id} handler that selects or reuses an Active Channel and
// multiplexes its broadcast bus to the client's HTTP response body.
package session

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nickgerrer/stream-proxy/internal/broadcast"
	"github.com/nickgerrer/stream-proxy/internal/domain"
	"github.com/nickgerrer/stream-proxy/internal/metrics"
	"github.com/nickgerrer/stream-proxy/internal/store"
	"github.com/nickgerrer/stream-proxy/internal/tspacket"
)

// Starter starts an Upstream Engine task for a freshly selected pair. This
// is satisfied by *upstream.Engine; the session handler depends on the
// narrower interface so its tests can fake channel startup.
type Starter interface {
	StartChannel(channelID string, streamID, accountID uint64, url string) *store.ActiveChannel
}

// Handler serves client sessions.
type Handler struct {
	Store             *store.AppState
	Engine            Starter
	Logger            zerolog.Logger
	Metrics           *metrics.Registry
	KeepaliveInterval time.Duration
}

// NewHandler builds a session Handler, applying a default keepalive cadence
// if none is given.
func NewHandler(st *store.AppState, engine Starter, logger zerolog.Logger, reg *metrics.Registry, keepalive time.Duration) *Handler {
	if keepalive <= 0 {
		keepalive = 500 * time.Millisecond
	}
	return &Handler{Store: st, Engine: engine, Logger: logger, Metrics: reg, KeepaliveInterval: keepalive}
}

// ServeStream handles GET /stream/{channel_id}. It looks up or starts the
// channel's Active Channel, subscribes to its broadcast bus, and streams
// chunks to the client until the client disconnects or the bus closes.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channel_id")
	clientID := uuid.NewString()
	ip := clientIP(r)

	log := h.Logger.With().
		Str("channel_id", channelID).
		Str("client_id", clientID).
		Str("client_ip", ip).
		Logger()

	ac, started := h.lookupOrStart(channelID)
	if ac == nil {
		log.Warn().Msg("no admissible upstream for channel")
		http.Error(w, "No streams available", http.StatusServiceUnavailable)
		return
	}
	if started {
		log.Info().Msg("started new upstream engine for channel")
	}

	sub := ac.Bus().Subscribe()
	client := domain.NewClientState(clientID, r.RemoteAddr, time.Now().UnixNano())
	ac.AddClient(client)
	defer func() {
		if ac.RemoveClient(clientID) == 0 {
			ac.Stop()
		}
	}()

	if h.Metrics != nil {
		h.Metrics.ActiveClients.Inc()
		defer h.Metrics.ActiveClients.Dec()
	}

	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)

	log.Info().Msg("client session attached")
	defer log.Info().Msg("client session detached")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	next := make(chan busResult, 1)
	go pumpBus(ctx, sub, next)

	ticker := time.NewTicker(h.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if _, err := w.Write(tspacket.NullPacket); err != nil {
				return
			}
			if h.Metrics != nil {
				h.Metrics.KeepalivesSent.Inc()
			}
			if flusher != nil {
				flusher.Flush()
			}

		case res := <-next:
			if res.err != nil {
				return
			}
			if res.closed {
				log.Info().Msg("upstream channel ended")
				return
			}
			if res.lagged > 0 {
				log.Warn().Uint64("lagged_chunks", res.lagged).Msg("client session fell behind broadcast bus")
				if h.Metrics != nil {
					h.Metrics.BroadcastLagged.Add(float64(res.lagged))
				}
			}
			if res.chunk != nil {
				if _, err := w.Write(res.chunk); err != nil {
					return
				}
				client.AddBytesSent(uint64(len(res.chunk)))
				if flusher != nil {
					flusher.Flush()
				}
			}
			ticker.Reset(h.KeepaliveInterval)
		}
	}
}

// busResult carries one Subscription.Next outcome across the pump goroutine.
type busResult struct {
	chunk  []byte
	lagged uint64
	closed bool
	err    error
}

// pumpBus drives sub.Next in a loop and forwards each result on results,
// blocking between sends since results has capacity 1 and the consumer
// drains it once per select iteration. It exits once ctx is cancelled or a
// terminal result (closed or error) has been delivered.
func pumpBus(ctx context.Context, sub *broadcast.Subscription, results chan<- busResult) {
	for {
		chunk, lagged, closed, err := sub.Next(ctx)
		select {
		case results <- busResult{chunk: chunk, lagged: lagged, closed: closed, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil || closed {
			return
		}
	}
}

// lookupOrStart returns the channel's existing Active Channel, or selects an
// admissible (stream, account) pair and starts a new one. The second return
// reports whether a new Upstream Engine was started by this call.
func (h *Handler) lookupOrStart(channelID string) (*store.ActiveChannel, bool) {
	if ac, ok := h.Store.GetActiveChannel(channelID); ok {
		return ac, false
	}

	streamID, accountID, url, ok := h.Store.SelectStream(channelID)
	if !ok {
		return nil, false
	}

	if ac, ok := h.Store.GetActiveChannel(channelID); ok {
		return ac, false
	}

	ac := h.Engine.StartChannel(channelID, streamID, accountID, url)
	return ac, true
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
