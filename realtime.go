package haven

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// ============================================================================
// Event Types
// ============================================================================

// ChangeEvent is one table change pushed by the backend. Record holds the full
// row for inserts and the deleted row's id fields for deletes.
type ChangeEvent struct {
	Type   string          `json:"type"` // "insert" or "delete"
	Table  string          `json:"table"`
	Record json.RawMessage `json:"record"`
}

// feedEnvelope is the wire format for all feed traffic in both directions.
type feedEnvelope struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ChangeHandler receives change events for one subscribed topic. Handlers run
// on their own goroutines; a slow handler never blocks the read loop.
type ChangeHandler func(ChangeEvent)

// FeedState represents the connection state.
type FeedState string

const (
	StateDisconnected FeedState = "disconnected"
	StateConnecting   FeedState = "connecting"
	StateConnected    FeedState = "connected"
	StateReconnecting FeedState = "reconnecting"
)

// ============================================================================
// Configuration
// ============================================================================

// FeedConfig configures the realtime feed client.
type FeedConfig struct {
	Token                string
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
}

func (c *FeedConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
}

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *FeedConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// ============================================================================
// FeedClient
// ============================================================================

type feedSub struct {
	id      int
	topic   string
	handler ChangeHandler
}

// FeedClient is the realtime feed connection: a WebSocket client that
// subscribes to per-table topics and dispatches change events to handlers.
// Subscriptions survive reconnects; every known topic is re-subscribed after
// the connection is re-established.
type FeedClient struct {
	baseURL string
	config  *FeedConfig

	mu               sync.Mutex
	conn             *websocket.Conn
	state            FeedState
	intentionalClose bool
	cancelFn         context.CancelFunc
	lastDataTime     time.Time

	subMu  sync.RWMutex
	subs   []feedSub
	nextID int

	recon *reconnector

	onConnected    []func()
	onDisconnected []func(reason string)
}

// NewFeedClient creates a feed client for the given backend base URL.
func NewFeedClient(baseURL string, config *FeedConfig) *FeedClient {
	if config == nil {
		config = &FeedConfig{}
	}
	config.defaults()
	return &FeedClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		config:  config,
		state:   StateDisconnected,
		recon:   newReconnector(config),
	}
}

// Topic builds the subscription topic for a table filtered to one parent row,
// e.g. Topic("chat_messages", "chat_id", "abc").
func Topic(table, column, value string) string {
	return table + ":" + column + "=eq." + value
}

// OnConnected registers a handler for the connected meta-event. Stores use it
// to trigger an offline-queue flush on reconnect.
func (fc *FeedClient) OnConnected(h func()) {
	fc.subMu.Lock()
	fc.onConnected = append(fc.onConnected, h)
	fc.subMu.Unlock()
}

// OnDisconnected registers a handler for the disconnected meta-event.
func (fc *FeedClient) OnDisconnected(h func(reason string)) {
	fc.subMu.Lock()
	fc.onDisconnected = append(fc.onDisconnected, h)
	fc.subMu.Unlock()
}

// State returns the current connection state.
func (fc *FeedClient) State() FeedState {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.state
}

// Connect establishes the WebSocket connection and starts the read and
// heartbeat loops. Calling Connect while connected is a no-op.
func (fc *FeedClient) Connect(ctx context.Context) error {
	fc.mu.Lock()
	if fc.state == StateConnected || fc.state == StateConnecting {
		fc.mu.Unlock()
		return nil
	}
	fc.state = StateConnecting
	fc.intentionalClose = false
	fc.mu.Unlock()

	wsURL := strings.Replace(fc.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/realtime?token=" + fc.config.Token

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		fc.mu.Lock()
		fc.state = StateDisconnected
		fc.mu.Unlock()
		return fmt.Errorf("websocket dial: %w", err)
	}

	fc.mu.Lock()
	fc.conn = conn
	fc.state = StateConnected
	fc.lastDataTime = time.Now()
	fc.mu.Unlock()
	fc.recon.markConnected()

	connCtx, cancel := context.WithCancel(context.Background())
	fc.mu.Lock()
	fc.cancelFn = cancel
	fc.mu.Unlock()

	fc.resubscribeAll(connCtx)
	fc.emitConnected()

	go fc.readLoop(connCtx)
	go fc.heartbeatLoop(connCtx)

	return nil
}

// Disconnect gracefully closes the connection. Registered subscriptions are
// kept and take effect again on the next Connect.
func (fc *FeedClient) Disconnect() error {
	fc.mu.Lock()
	fc.intentionalClose = true
	if fc.cancelFn != nil {
		fc.cancelFn()
		fc.cancelFn = nil
	}
	conn := fc.conn
	fc.conn = nil
	fc.state = StateDisconnected
	fc.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function. Subscribing twice to the same topic is fine; each handler gets its
// own events. The server-side subscription is dropped once the last handler
// for the topic unsubscribes.
func (fc *FeedClient) Subscribe(ctx context.Context, topic string, h ChangeHandler) (func(), error) {
	fc.subMu.Lock()
	fc.nextID++
	id := fc.nextID
	first := fc.topicCount(topic) == 0
	fc.subs = append(fc.subs, feedSub{id: id, topic: topic, handler: h})
	fc.subMu.Unlock()

	if first {
		if err := fc.send(ctx, feedEnvelope{Type: "subscribe", Topic: topic}); err != nil {
			// Not connected yet; the topic is sent on (re)connect instead.
			fc.mu.Lock()
			connected := fc.state == StateConnected
			fc.mu.Unlock()
			if connected {
				fc.subMu.Lock()
				for i, s := range fc.subs {
					if s.id == id {
						fc.subs = append(fc.subs[:i], fc.subs[i+1:]...)
						break
					}
				}
				fc.subMu.Unlock()
				return nil, err
			}
		}
	}

	unsubscribe := func() {
		fc.subMu.Lock()
		for i, s := range fc.subs {
			if s.id == id {
				fc.subs = append(fc.subs[:i], fc.subs[i+1:]...)
				break
			}
		}
		last := fc.topicCount(topic) == 0
		fc.subMu.Unlock()
		if last {
			_ = fc.send(context.Background(), feedEnvelope{Type: "unsubscribe", Topic: topic})
		}
	}
	return unsubscribe, nil
}

// topicCount reports how many handlers are registered for topic. Callers hold
// subMu.
func (fc *FeedClient) topicCount(topic string) int {
	n := 0
	for _, s := range fc.subs {
		if s.topic == topic {
			n++
		}
	}
	return n
}

func (fc *FeedClient) resubscribeAll(ctx context.Context) {
	fc.subMu.RLock()
	seen := make(map[string]bool)
	topics := make([]string, 0, len(fc.subs))
	for _, s := range fc.subs {
		if !seen[s.topic] {
			seen[s.topic] = true
			topics = append(topics, s.topic)
		}
	}
	fc.subMu.RUnlock()

	for _, topic := range topics {
		_ = fc.send(ctx, feedEnvelope{Type: "subscribe", Topic: topic})
	}
}

func (fc *FeedClient) send(ctx context.Context, env feedEnvelope) error {
	fc.mu.Lock()
	conn := fc.conn
	fc.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (fc *FeedClient) dispatch(env feedEnvelope) {
	if env.Type != "change" {
		return
	}
	var ev ChangeEvent
	if json.Unmarshal(env.Payload, &ev) != nil {
		return
	}

	fc.subMu.RLock()
	handlers := make([]ChangeHandler, 0, 2)
	for _, s := range fc.subs {
		if s.topic == env.Topic {
			handlers = append(handlers, s.handler)
		}
	}
	fc.subMu.RUnlock()

	for _, h := range handlers {
		go h(ev)
	}
}

func (fc *FeedClient) readLoop(ctx context.Context) {
	for {
		fc.mu.Lock()
		conn := fc.conn
		fc.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			fc.mu.Lock()
			intentional := fc.intentionalClose
			fc.mu.Unlock()
			if intentional {
				return
			}

			fc.mu.Lock()
			fc.state = StateDisconnected
			fc.conn = nil
			fc.mu.Unlock()

			fc.emitDisconnected(err.Error())

			if fc.config.AutoReconnect && fc.recon.shouldReconnect() {
				fc.scheduleReconnect()
			}
			return
		}

		fc.mu.Lock()
		fc.lastDataTime = time.Now()
		fc.mu.Unlock()

		var env feedEnvelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		fc.dispatch(env)
	}
}

// heartbeatLoop pings on an interval and closes the connection when no data
// has arrived for two intervals, so the read loop notices dead links behind
// NATs that silently drop the TCP stream.
func (fc *FeedClient) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(fc.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fc.mu.Lock()
			conn := fc.conn
			stale := time.Since(fc.lastDataTime) > 2*fc.config.HeartbeatInterval
			fc.mu.Unlock()
			if conn == nil {
				return
			}
			if stale {
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
			if err := conn.Ping(ctx); err != nil {
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

func (fc *FeedClient) scheduleReconnect() {
	delay := fc.recon.nextDelay()
	fc.mu.Lock()
	fc.state = StateReconnecting
	fc.mu.Unlock()

	time.Sleep(delay)

	// The old context died with the connection.
	if err := fc.Connect(context.Background()); err != nil {
		if fc.config.AutoReconnect && fc.recon.shouldReconnect() {
			fc.scheduleReconnect()
		} else {
			fc.mu.Lock()
			fc.state = StateDisconnected
			fc.mu.Unlock()
		}
	}
}

func (fc *FeedClient) emitConnected() {
	fc.subMu.RLock()
	handlers := append([]func(){}, fc.onConnected...)
	fc.subMu.RUnlock()
	for _, h := range handlers {
		go h()
	}
}

func (fc *FeedClient) emitDisconnected(reason string) {
	fc.subMu.RLock()
	handlers := append([]func(string){}, fc.onDisconnected...)
	fc.subMu.RUnlock()
	for _, h := range handlers {
		go h(reason)
	}
}
