// Package control implements the control-plane HTTP surface: channel
// routing mutation, account quota mutation, and bulk sync.
package control

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/nickgerrer/stream-proxy/internal/domain"
	"github.com/nickgerrer/stream-proxy/internal/store"
)

// Handler serves the control-plane endpoints.
type Handler struct {
	Store  *store.AppState
	Logger zerolog.Logger
}

// NewHandler builds a control Handler.
func NewHandler(st *store.AppState, logger zerolog.Logger) *Handler {
	return &Handler{Store: st, Logger: logger}
}

// streamURLDTO is the wire shape of one failover entry within a stream.
type streamURLDTO struct {
	AccountID uint64 `json:"account_id"`
	URL       string `json:"url"`
}

// streamDTO is the wire shape of one stream variant.
type streamDTO struct {
	ID   uint64         `json:"id"`
	URLs []streamURLDTO `json:"urls"`
}

// putChannelRequest is the body of PUT /control/v1/channels/{channel_id}.
type putChannelRequest struct {
	Streams []streamDTO `json:"streams"`
}

// PutChannel handles PUT /control/v1/channels/{channel_id}: replaces a
// channel's routing. It does not disturb any Active Channel already running
// for this id; a live failover or a new client session picks up the new
// routing at its next selection.
func (h *Handler) PutChannel(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channel_id")

	var req putChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	routing := &domain.ChannelRouting{Streams: make([]domain.Stream, 0, len(req.Streams))}
	for _, s := range req.Streams {
		stream := domain.Stream{ID: s.ID, URLs: make([]domain.StreamURL, 0, len(s.URLs))}
		for _, u := range s.URLs {
			stream.URLs = append(stream.URLs, domain.StreamURL{AccountID: u.AccountID, URL: u.URL})
		}
		routing.Streams = append(routing.Streams, stream)
	}

	h.Store.PutChannelRoute(channelID, routing)
	h.Logger.Info().Str("channel_id", channelID).Int("stream_count", len(routing.Streams)).Msg("channel routing updated")

	w.WriteHeader(http.StatusOK)
}

// DeleteChannel handles DELETE /control/v1/channels/{channel_id}: removes a
// channel's routing and, if it has a live Active Channel, stops it. Always
// returns 200, whether or not the channel was routed: deletion is
// idempotent. The Upstream Engine itself is responsible for releasing the
// account slot it holds once it observes the stop signal; this handler
// never decrements an account directly, which would otherwise race the
// engine's own exit-time decrement.
func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channel_id")

	ac, hadRoute := h.Store.DeleteChannelRoute(channelID)
	if ac != nil {
		ac.Stop()
	}

	h.Logger.Info().Str("channel_id", channelID).Bool("had_route", hadRoute).Bool("stopped_active_channel", ac != nil).Msg("channel routing deleted")
	w.WriteHeader(http.StatusOK)
}

// putAccountRequest is the body of PUT /control/v1/accounts/{account_id}.
type putAccountRequest struct {
	MaxConnections uint32 `json:"max_connections"`
}

// PutAccount handles PUT /control/v1/accounts/{account_id}: upserts an
// account's connection ceiling without disturbing its current active count.
func (h *Handler) PutAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathUint64(r, "account_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account_id")
		return
	}

	var req putAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.Store.PutAccount(accountID, req.MaxConnections)
	h.Logger.Info().Uint64("account_id", accountID).Uint32("max_connections", req.MaxConnections).Msg("account quota updated")

	w.WriteHeader(http.StatusOK)
}

// syncRequest is the body of POST /control/v1/sync: a full replacement
// snapshot of routing and account quotas.
type syncRequest struct {
	Channels map[string]putChannelRequest `json:"channels"`
	Accounts map[string]uint32            `json:"accounts"`
}

// Sync handles POST /control/v1/sync: bulk reconciliation against a
// control-plane snapshot. Channel ids absent from the payload have their
// routing removed and their Active Channel, if any, stopped. Channels
// present in both old and new state are never reset, even if unchanged.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	channels := make(map[string]*domain.ChannelRouting, len(req.Channels))
	for id, dto := range req.Channels {
		routing := &domain.ChannelRouting{Streams: make([]domain.Stream, 0, len(dto.Streams))}
		for _, s := range dto.Streams {
			stream := domain.Stream{ID: s.ID, URLs: make([]domain.StreamURL, 0, len(s.URLs))}
			for _, u := range s.URLs {
				stream.URLs = append(stream.URLs, domain.StreamURL{AccountID: u.AccountID, URL: u.URL})
			}
			routing.Streams = append(routing.Streams, stream)
		}
		channels[id] = routing
	}

	accountMax := make(map[uint64]uint32, len(req.Accounts))
	for idStr, max := range req.Accounts {
		id, err := parseUint64(idStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid account id in accounts map")
			return
		}
		accountMax[id] = max
	}

	result := h.Store.Sync(channels, accountMax)
	for _, ac := range result.Stopped {
		ac.Stop()
	}

	h.Logger.Info().
		Int("channel_count", len(channels)).
		Int("account_count", len(accountMax)).
		Int("stopped_count", len(result.Stopped)).
		Msg("bulk sync applied")

	w.WriteHeader(http.StatusOK)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
