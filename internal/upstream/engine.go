// Package upstream implements the per-channel upstream fetch task: connect,
// chunk-assemble, broadcast, and ordered failover across alternate
// (stream, account) pairs.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/nickgerrer/stream-proxy/internal/broadcast"
	"github.com/nickgerrer/stream-proxy/internal/metrics"
	"github.com/nickgerrer/stream-proxy/internal/store"
)

// ChunkSize is an integer multiple of the 188-byte MPEG-TS packet size.
const ChunkSize = 188 * 1024

// DefaultFailoverCap bounds how many upstream failures a channel tolerates
// over the life of its Upstream Engine (the count is never reset) before the
// engine gives up and the channel disappears.
const DefaultFailoverCap = 10

// errStreamEnded marks a clean upstream EOF, which is treated as a failure
// that triggers failover rather than a graceful stop.
var errStreamEnded = errors.New("upstream stream ended")

// Engine starts and runs Upstream Engine tasks.
type Engine struct {
	Store       *store.AppState
	HTTPClient  *http.Client
	Logger      zerolog.Logger
	Metrics     *metrics.Registry
	BusCapacity int
	FailoverCap int
	ChunkSize   int
}

// NewEngine builds an Engine with the given collaborators, applying defaults
// for zero-valued tuning knobs.
func NewEngine(st *store.AppState, httpClient *http.Client, logger zerolog.Logger, reg *metrics.Registry, busCapacity int) *Engine {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if busCapacity <= 0 {
		busCapacity = 64
	}
	return &Engine{
		Store:       st,
		HTTPClient:  httpClient,
		Logger:      logger,
		Metrics:     reg,
		BusCapacity: busCapacity,
		FailoverCap: DefaultFailoverCap,
		ChunkSize:   ChunkSize,
	}
}

// StartChannel registers a fresh Active Channel for channelID bound to the
// given (stream, account, url) selection, charges the account, spawns the
// upstream loop, and returns the Active Channel synchronously so a
// concurrent client request sees it immediately.
func (e *Engine) StartChannel(channelID string, streamID, accountID uint64, url string) *store.ActiveChannel {
	ctx, cancel := context.WithCancel(context.Background())
	bus := broadcast.NewBus(e.BusCapacity)
	ac := store.NewActiveChannel(streamID, accountID, url, bus, cancel)

	e.Store.RegisterActiveChannel(channelID, ac)
	e.Store.IncrementConnections(accountID)
	if e.Metrics != nil {
		e.Metrics.ActiveChannels.Inc()
	}

	go e.run(ctx, channelID, ac)
	return ac
}

// run is the upstream loop: fetch, and on failure, fail over to the next
// admissible pair, until the stop signal fires, no admissible pair remains,
// or the failover cap is reached.
func (e *Engine) run(ctx context.Context, channelID string, ac *store.ActiveChannel) {
	// held is false between releasing a failed pair's slot and charging the
	// next pair's, so an exit in that window does not release twice.
	held := true
	defer func() {
		if held {
			_, lastAccountID, _ := ac.Upstream()
			e.Store.DecrementConnections(lastAccountID)
		}
		e.Store.RemoveActiveChannel(channelID, ac)
		ac.Bus().Close()
		if e.Metrics != nil {
			e.Metrics.ActiveChannels.Dec()
		}
		e.Logger.Info().Str("channel_id", channelID).Msg("upstream engine exited")
	}()

	failovers := 0
	for {
		_, _, url := ac.Upstream()
		err := e.fetchUpstream(ctx, ac, url)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			continue
		}

		failovers++
		if e.Metrics != nil {
			e.Metrics.Failovers.Inc()
			e.Metrics.UpstreamErrors.Inc()
		}
		e.Logger.Warn().
			Str("channel_id", channelID).
			Err(err).
			Int("failover_count", failovers).
			Msg("upstream fetch failed")

		if failovers >= e.FailoverCap {
			e.Logger.Error().Str("channel_id", channelID).Msg("failover cap reached, channel exiting")
			return
		}

		streamID, accountID, _ := ac.Upstream()
		e.Store.DecrementConnections(accountID)
		held = false

		nextStreamID, nextAccountID, nextURL, ok := e.Store.SelectNextStream(channelID, streamID, accountID)
		if !ok {
			e.Logger.Warn().Str("channel_id", channelID).Msg("no admissible stream after failure, channel exiting")
			return
		}

		ac.SetUpstream(nextStreamID, nextAccountID, nextURL)
		e.Store.IncrementConnections(nextAccountID)
		held = true
	}
}

// fetchUpstream issues a GET, assembles the response body into fixed-size
// chunks, and publishes each to the channel's broadcast bus. It returns nil
// only when ctx is cancelled mid-fetch (a clean stop); any other return is
// an error that should trigger failover, including a clean upstream EOF.
func (e *Engine) fetchUpstream(ctx context.Context, ac *store.ActiveChannel, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	chunkSize := e.ChunkSize
	if chunkSize <= 0 {
		chunkSize = ChunkSize
	}

	pending := make([]byte, 0, chunkSize+32*1024)
	readBuf := make([]byte, 32*1024)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, readErr := resp.Body.Read(readBuf)
		if n > 0 {
			pending = append(pending, readBuf[:n]...)
			for len(pending) >= chunkSize {
				chunk := make([]byte, chunkSize)
				copy(chunk, pending[:chunkSize])
				pending = append(pending[:0], pending[chunkSize:]...)

				ac.AddBytesTransferred(uint64(chunkSize))
				if e.Metrics != nil {
					e.Metrics.BytesTransferred.Add(float64(chunkSize))
				}
				ac.Bus().Publish(chunk)
			}
		}

		if readErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			if readErr == io.EOF {
				if len(pending) > 0 {
					final := make([]byte, len(pending))
					copy(final, pending)
					ac.AddBytesTransferred(uint64(len(final)))
					if e.Metrics != nil {
						e.Metrics.BytesTransferred.Add(float64(len(final)))
					}
					ac.Bus().Publish(final)
				}
				return errStreamEnded
			}
			// Mid-stream read error: discard pending, no flush, failover.
			return fmt.Errorf("read upstream: %w", readErr)
		}
	}
}
