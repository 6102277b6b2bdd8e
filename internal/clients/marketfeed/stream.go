package marketfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	dialTimeout = 30 * time.Second

	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10
)

// QuoteUpdate is one live price tick from the stream.
type QuoteUpdate struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// QuoteHandler receives live ticks. Handlers must not block; slow
// consumers should buffer on their side.
type QuoteHandler func(QuoteUpdate)

// QuoteStream maintains a websocket subscription for live quotes, with
// exponential-backoff reconnection.
type QuoteStream struct {
	url     string
	symbols []string
	handler QuoteHandler
	log     zerolog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	connected  bool
	stopped    bool
	stopChan   chan struct{}
}

// NewQuoteStream creates a new quote stream client
func NewQuoteStream(url string, symbols []string, handler QuoteHandler, log zerolog.Logger) *QuoteStream {
	return &QuoteStream{
		url:      url,
		symbols:  symbols,
		handler:  handler,
		log:      log.With().Str("component", "quote_stream").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start establishes the connection and begins reading ticks. A failed
// initial connection is retried in the background.
func (qs *QuoteStream) Start() error {
	qs.log.Info().Str("url", qs.url).Int("symbols", len(qs.symbols)).Msg("Starting quote stream")

	if err := qs.connect(); err != nil {
		qs.log.Warn().Err(err).Msg("Initial stream connection failed, will retry in background")
		go qs.reconnectLoop()
		return err
	}

	qs.mu.RLock()
	ctx := qs.connCtx
	qs.mu.RUnlock()
	go qs.readMessages(ctx)

	return nil
}

// Stop gracefully shuts down the stream.
func (qs *QuoteStream) Stop() error {
	qs.mu.Lock()
	if qs.stopped {
		qs.mu.Unlock()
		return nil
	}
	qs.stopped = true
	qs.mu.Unlock()

	close(qs.stopChan)
	return qs.disconnect()
}

// IsConnected reports whether the stream currently has a live
// connection.
func (qs *QuoteStream) IsConnected() bool {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	return qs.connected
}

func (qs *QuoteStream) connect() error {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, qs.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial stream: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	qs.conn = conn
	qs.connCtx = ctx
	qs.cancelFunc = cancel
	qs.connected = true

	subscription := struct {
		Action  string   `json:"action"`
		Symbols []string `json:"symbols"`
	}{Action: "subscribe", Symbols: qs.symbols}

	payload, err := json.Marshal(subscription)
	if err != nil {
		return fmt.Errorf("failed to encode subscription: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	qs.log.Info().Msg("Quote stream connected")
	return nil
}

func (qs *QuoteStream) disconnect() error {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	if qs.cancelFunc != nil {
		qs.cancelFunc()
	}
	qs.connected = false

	if qs.conn != nil {
		err := qs.conn.Close(websocket.StatusNormalClosure, "shutting down")
		qs.conn = nil
		return err
	}
	return nil
}

func (qs *QuoteStream) readMessages(ctx context.Context) {
	for {
		select {
		case <-qs.stopChan:
			return
		default:
		}

		qs.mu.RLock()
		conn := qs.conn
		qs.mu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			qs.mu.Lock()
			stopped := qs.stopped
			qs.connected = false
			qs.mu.Unlock()
			if stopped {
				return
			}
			qs.log.Warn().Err(err).Msg("Stream read failed, reconnecting")
			go qs.reconnectLoop()
			return
		}

		var update QuoteUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			qs.log.Debug().Err(err).Msg("Skipping unparseable stream message")
			continue
		}
		if update.Symbol == "" {
			continue
		}

		if qs.handler != nil {
			qs.handler(update)
		}
	}
}

// reconnectLoop retries the connection with exponential backoff until it
// succeeds, the attempt budget is spent, or the stream is stopped.
func (qs *QuoteStream) reconnectLoop() {
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		delay := time.Duration(float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1)))
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}

		select {
		case <-qs.stopChan:
			return
		case <-time.After(delay):
		}

		qs.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnecting quote stream")
		if err := qs.connect(); err != nil {
			qs.log.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect failed")
			continue
		}

		qs.mu.RLock()
		ctx := qs.connCtx
		qs.mu.RUnlock()
		go qs.readMessages(ctx)
		return
	}

	qs.log.Error().Int("attempts", maxReconnectAttempts).Msg("Giving up on quote stream reconnection")
}
