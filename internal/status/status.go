// Package status implements the read-only status-plane HTTP surface:
// per-channel and aggregate observability over routed and live channels,
// plus a liveness probe.
package status

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/nickgerrer/stream-proxy/internal/store"
)

// Handler serves the status-plane endpoints.
type Handler struct {
	Store *store.AppState
}

// NewHandler builds a status Handler.
func NewHandler(st *store.AppState) *Handler {
	return &Handler{Store: st}
}

// upstreamStatusDTO describes the upstream currently feeding an active
// channel.
type upstreamStatusDTO struct {
	StreamID         uint64 `json:"stream_id"`
	AccountID        uint64 `json:"account_id"`
	URL              string `json:"url"`
	ConnectedSince   string `json:"connected_since"`
	BytesTransferred uint64 `json:"bytes_transferred"`
}

// channelStatusDTO is the per-channel status used in the list response.
type channelStatusDTO struct {
	State    string             `json:"state"`
	Clients  int64              `json:"clients"`
	Upstream *upstreamStatusDTO `json:"upstream"`
}

// clientInfoDTO describes one attached client session.
type clientInfoDTO struct {
	ID             string `json:"id"`
	ConnectedSince string `json:"connected_since"`
	BytesSent      uint64 `json:"bytes_sent"`
	RemoteAddr     string `json:"remote_addr"`
}

// channelDetailDTO is the body of GET /status/v1/channels/{channel_id}:
// state and upstream as in channelStatusDTO, with the per-client list in
// place of a bare client count.
type channelDetailDTO struct {
	State    string             `json:"state"`
	Upstream *upstreamStatusDTO `json:"upstream"`
	Clients  []clientInfoDTO    `json:"clients"`
}

// accountStatusDTO is the per-account status used in the list response.
type accountStatusDTO struct {
	ActiveConnections uint32 `json:"active_connections"`
	MaxConnections    uint32 `json:"max_connections"`
}

// channelsResponseDTO is the body of GET /status/v1/channels.
type channelsResponseDTO struct {
	Channels map[string]channelStatusDTO `json:"channels"`
	Accounts map[string]accountStatusDTO `json:"accounts"`
}

func toUpstreamStatusDTO(ac *store.ActiveChannel) *upstreamStatusDTO {
	streamID, accountID, url := ac.Upstream()
	return &upstreamStatusDTO{
		StreamID:         streamID,
		AccountID:        accountID,
		URL:              url,
		ConnectedSince:   ac.ConnectedSince().UTC().Format(time.RFC3339),
		BytesTransferred: ac.BytesTransferred(),
	}
}

func toClientInfoDTOs(ac *store.ActiveChannel) []clientInfoDTO {
	clients := ac.Clients()
	out := make([]clientInfoDTO, 0, len(clients))
	for _, c := range clients {
		out = append(out, clientInfoDTO{
			ID:             c.ID,
			ConnectedSince: time.Unix(0, c.ConnectedSince).UTC().Format(time.RFC3339),
			BytesSent:      c.BytesSent(),
			RemoteAddr:     c.RemoteAddr,
		})
	}
	return out
}

// ListChannels handles GET /status/v1/channels: every routed channel,
// marked active or idle, plus a status entry for every known account. The
// snapshot is best-effort, not transactionally consistent across channels.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channelIDs := h.Store.RouteIDs()
	channels := make(map[string]channelStatusDTO, len(channelIDs))
	for _, id := range channelIDs {
		if ac, ok := h.Store.GetActiveChannel(id); ok {
			channels[id] = channelStatusDTO{State: "active", Clients: ac.ClientCount(), Upstream: toUpstreamStatusDTO(ac)}
			continue
		}
		channels[id] = channelStatusDTO{State: "idle", Clients: 0, Upstream: nil}
	}

	accountIDs := h.Store.AccountIDs()
	accounts := make(map[string]accountStatusDTO, len(accountIDs))
	for _, id := range accountIDs {
		acc, ok := h.Store.GetAccount(id)
		if !ok {
			continue
		}
		accounts[uint64ToString(id)] = accountStatusDTO{ActiveConnections: acc.Active(), MaxConnections: acc.Max()}
	}

	writeJSON(w, http.StatusOK, channelsResponseDTO{Channels: channels, Accounts: accounts})
}

// GetChannel handles GET /status/v1/channels/{channel_id}: active or idle
// detail plus the per-client list. 404 only if the channel id is neither
// routed nor active.
func (h *Handler) GetChannel(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channel_id")

	ac, active := h.Store.GetActiveChannel(channelID)
	_, routed := h.Store.GetRoute(channelID)
	if !active && !routed {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "channel not found"})
		return
	}

	if active {
		writeJSON(w, http.StatusOK, channelDetailDTO{
			State:    "active",
			Upstream: toUpstreamStatusDTO(ac),
			Clients:  toClientInfoDTOs(ac),
		})
		return
	}

	writeJSON(w, http.StatusOK, channelDetailDTO{State: "idle", Upstream: nil, Clients: []clientInfoDTO{}})
}

// healthResponse is the body of GET /status/v1/health.
type healthResponse struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	ActiveChannels int    `json:"active_channels"`
	TotalClients   int64  `json:"total_clients"`
}

// Health handles GET /status/v1/health: an always-200 liveness probe
// reporting process uptime, live channel count, and total attached clients.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ids := h.Store.ActiveChannelIDs()
	var totalClients int64
	for _, id := range ids {
		if ac, ok := h.Store.GetActiveChannel(id); ok {
			totalClients += ac.ClientCount()
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(h.Store.StartTime()).Seconds()),
		ActiveChannels: len(ids),
		TotalClients:   totalClients,
	})
}

func uint64ToString(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
