package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nickgerrer/stream-proxy/internal/domain"
	"github.com/nickgerrer/stream-proxy/internal/store"
)

func newTestMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status/v1/channels", h.ListChannels)
	mux.HandleFunc("GET /status/v1/channels/{channel_id}", h.GetChannel)
	mux.HandleFunc("GET /status/v1/health", h.Health)
	return mux
}

func TestHealthReportsUptimeActiveChannelsAndTotalClients(t *testing.T) {
	st := store.New()
	ac := store.NewActiveChannel(1, 100, "http://u", nil, func() {})
	ac.AddClient(domain.NewClientState("client1", "127.0.0.1:1234", time.Now().UnixNano()))
	st.RegisterActiveChannel("chan1", ac)

	h := NewHandler(st)
	srv := httptest.NewServer(newTestMux(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status/v1/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if int(body["active_channels"].(float64)) != 1 {
		t.Fatalf("expected active_channels=1, got %v", body["active_channels"])
	}
	if int(body["total_clients"].(float64)) != 1 {
		t.Fatalf("expected total_clients=1, got %v", body["total_clients"])
	}
}

func TestGetChannelNeitherRoutedNorActiveReturns404(t *testing.T) {
	st := store.New()
	h := NewHandler(st)
	srv := httptest.NewServer(newTestMux(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status/v1/channels/missing")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetChannelRoutedButIdleReturnsIdle(t *testing.T) {
	st := store.New()
	st.PutChannelRoute("chan1", nil)

	h := NewHandler(st)
	srv := httptest.NewServer(newTestMux(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status/v1/channels/chan1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body channelDetailDTO
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.State != "idle" || body.Upstream != nil || len(body.Clients) != 0 {
		t.Fatalf("unexpected idle detail: %+v", body)
	}
}

func TestGetChannelActiveReturnsDetail(t *testing.T) {
	st := store.New()
	st.PutChannelRoute("chan1", nil)
	ac := store.NewActiveChannel(5, 200, "http://u", nil, func() {})
	ac.AddBytesTransferred(1024)
	st.RegisterActiveChannel("chan1", ac)

	h := NewHandler(st)
	srv := httptest.NewServer(newTestMux(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status/v1/channels/chan1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body channelDetailDTO
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.State != "active" || body.Upstream == nil {
		t.Fatalf("unexpected detail: %+v", body)
	}
	if body.Upstream.StreamID != 5 || body.Upstream.AccountID != 200 || body.Upstream.BytesTransferred != 1024 {
		t.Fatalf("unexpected upstream detail: %+v", body.Upstream)
	}
}

func TestListChannelsIncludesIdleRoutesAndAccounts(t *testing.T) {
	st := store.New()
	st.PutChannelRoute("chan1", nil)
	st.PutChannelRoute("chan2", nil)
	st.RegisterActiveChannel("chan1", store.NewActiveChannel(1, 100, "u1", nil, func() {}))
	st.PutAccount(100, 5)

	h := NewHandler(st)
	srv := httptest.NewServer(newTestMux(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status/v1/channels")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body channelsResponseDTO
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if len(body.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(body.Channels))
	}
	if body.Channels["chan1"].State != "active" {
		t.Fatalf("expected chan1 active, got %+v", body.Channels["chan1"])
	}
	if body.Channels["chan2"].State != "idle" {
		t.Fatalf("expected chan2 idle, got %+v", body.Channels["chan2"])
	}

	acc, ok := body.Accounts["100"]
	if !ok {
		t.Fatalf("expected account 100 in accounts map, got %+v", body.Accounts)
	}
	if acc.MaxConnections != 5 {
		t.Fatalf("expected max_connections=5, got %+v", acc)
	}
}
