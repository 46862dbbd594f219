// Package realtime connects to the chat socket service and relays events.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/buddychat/internal/crypto"
	"github.com/eldtechnologies/buddychat/internal/metrics"
	"github.com/eldtechnologies/buddychat/internal/models"
)

// Event names used by the chat service.
const (
	EventChatMessage = "chatMessage"
	EventMarkRead    = "mark-read"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 20 * time.Second
	maxMessageSize   = 1 << 20

	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 20 * time.Second
)

var (
	ErrNotConnected        = errors.New("cannot emit, socket not connected")
	ErrMissingToken        = errors.New("no credential for socket connection")
	ErrReconnectsExhausted = errors.New("reconnect attempts exhausted")
	errServerDisconnect    = errors.New("server closed the socket")
)

// RejectedError is returned when the server refuses the CONNECT handshake,
// typically because the credential is invalid. It is not retried.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "socket connection rejected: " + e.Reason
}

// State is the observable connectivity of the channel.
type State struct {
	Connected bool      `json:"connected"`
	LastError string    `json:"lastError,omitempty"`
	Attempt   int       `json:"attempt"`
	Since     time.Time `json:"since"`
}

// Options configures a Channel.
type Options struct {
	URL               string        // http(s) or ws(s) origin of the socket service
	Token             string        // bearer credential sent in the CONNECT auth payload
	ReconnectDelay    time.Duration // fixed backoff between attempts
	ReconnectAttempts int           // 0 means unlimited
	Dialer            *websocket.Dialer
	Logger            zerolog.Logger
}

// Channel is an auto-reconnecting Socket.IO client over a websocket.
type Channel struct {
	opts   Options
	logger zerolog.Logger

	mu       sync.RWMutex
	conn     *websocket.Conn
	state    State
	handlers map[string][]func(json.RawMessage)
	watchers []func(State)

	writeMu sync.Mutex
}

// New creates a channel. Register handlers before calling Run.
func New(opts Options) *Channel {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		}
	}

	return &Channel{
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "realtime").Logger(),
		handlers: make(map[string][]func(json.RawMessage)),
	}
}

// On registers fn for inbound events named event. fn receives the first
// event argument and runs on the reader goroutine, in arrival order.
func (c *Channel) On(event string, fn func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], fn)
}

// OnChatMessage registers fn for decoded inbound chat messages.
func (c *Channel) OnChatMessage(fn func(models.Message)) {
	c.On(EventChatMessage, func(raw json.RawMessage) {
		var msg models.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("dropping undecodable chat message")
			return
		}
		fn(msg)
	})
}

// OnState registers fn for connectivity changes.
func (c *Channel) OnState(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

// State returns the current connectivity.
func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connected reports whether the channel currently has a live session.
func (c *Channel) Connected() bool {
	return c.State().Connected
}

// Emit sends an event. Events emitted while disconnected are dropped, not queued.
func (c *Channel) Emit(event string, payload interface{}) error {
	c.mu.RLock()
	conn, connected := c.conn, c.state.Connected
	c.mu.RUnlock()

	if conn == nil || !connected {
		metrics.ChannelDropped.WithLabelValues(event).Inc()
		c.logger.Warn().Str("event", event).Msg("cannot emit, socket not connected")
		return ErrNotConnected
	}

	packet, err := encodeEvent(event, payload)
	if err != nil {
		return err
	}
	if err := c.write(conn, packet); err != nil {
		metrics.ChannelDropped.WithLabelValues(event).Inc()
		return fmt.Errorf("emit %s: %w", event, err)
	}

	metrics.ChannelEvents.WithLabelValues("out", event).Inc()
	return nil
}

// SendMessage emits a chat message.
func (c *Channel) SendMessage(msg models.Message) error {
	return c.Emit(EventChatMessage, msg)
}

// MarkRead tells the server that messages from counterpartID have been read.
func (c *Channel) MarkRead(counterpartID string) error {
	return c.Emit(EventMarkRead, map[string]string{"from": counterpartID})
}

// Run connects and keeps the channel connected until ctx is done, the server
// rejects the credential, or the reconnect budget is spent.
func (c *Channel) Run(ctx context.Context) error {
	if c.opts.Token == "" {
		return ErrMissingToken
	}

	attempt := 0
	for {
		connected, err := c.session(ctx, attempt)
		if ctx.Err() != nil {
			c.setState(false, nil, attempt)
			return nil
		}
		if connected {
			attempt = 0
		}

		var rejected *RejectedError
		if errors.As(err, &rejected) {
			c.setState(false, err, attempt)
			c.logger.Error().Str("reason", rejected.Reason).Msg("socket connection rejected")
			return err
		}

		attempt++
		c.setState(false, err, attempt)
		if c.opts.ReconnectAttempts > 0 && attempt > c.opts.ReconnectAttempts {
			c.logger.Error().Int("attempts", attempt-1).Msg("giving up on socket reconnect")
			return ErrReconnectsExhausted
		}

		c.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", c.opts.ReconnectDelay).Msg("socket disconnected, reconnecting")
		metrics.ChannelReconnects.Inc()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

// session runs one connection until it ends. connected reports whether the
// CONNECT handshake succeeded.
func (c *Channel) session(ctx context.Context, attempt int) (connected bool, err error) {
	endpoint, err := socketURL(c.opts.URL)
	if err != nil {
		return false, err
	}

	header := http.Header{}
	header.Set("X-Request-ID", crypto.NewUUIDv7().String())

	conn, _, err := c.opts.Dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	// Close the socket when the caller cancels so the blocking read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.write(conn, string([]byte{eioMessage, sioDisconnect}))
			conn.Close()
		case <-done:
		}
	}()

	open, err := c.handshake(conn)
	if err != nil {
		return false, err
	}

	pingInterval := time.Duration(open.PingInterval) * time.Millisecond
	pingTimeout := time.Duration(open.PingTimeout) * time.Millisecond
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	c.setState(true, nil, attempt)
	c.logger.Info().Str("sid", open.SID).Msg("You are now online")

	return true, c.readLoop(conn, pingInterval+pingTimeout)
}

// handshake reads the Engine.IO open packet and performs the Socket.IO CONNECT.
func (c *Channel) handshake(conn *websocket.Conn) (openPayload, error) {
	var open openPayload

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	f, err := readFrame(conn)
	if err != nil {
		return open, err
	}
	if f.engine != eioOpen {
		return open, fmt.Errorf("%w: expected open packet", errMalformedPacket)
	}
	if err := json.Unmarshal(f.data, &open); err != nil {
		return open, fmt.Errorf("%w: open payload: %v", errMalformedPacket, err)
	}

	packet, err := encodeConnect(map[string]string{"token": c.opts.Token})
	if err != nil {
		return open, err
	}
	if err := c.write(conn, packet); err != nil {
		return open, err
	}

	for {
		f, err := readFrame(conn)
		if err != nil {
			return open, err
		}
		switch {
		case f.engine == eioPing:
			if err := c.write(conn, string(eioPong)); err != nil {
				return open, err
			}
		case f.engine == eioMessage && f.socket == sioConnect:
			conn.SetReadDeadline(time.Time{})
			return open, nil
		case f.engine == eioMessage && f.socket == sioConnectError:
			return open, &RejectedError{Reason: connectErrorMessage(f.data)}
		case f.engine == eioClose:
			return open, errServerDisconnect
		}
	}
}

// readLoop dispatches inbound packets until the connection fails.
func (c *Channel) readLoop(conn *websocket.Conn, deadline time.Duration) error {
	for {
		conn.SetReadDeadline(time.Now().Add(deadline))
		f, err := readFrame(conn)
		if err != nil {
			return err
		}

		switch f.engine {
		case eioPing:
			if err := c.write(conn, string(eioPong)); err != nil {
				return err
			}
		case eioClose:
			return errServerDisconnect
		case eioMessage:
			switch f.socket {
			case sioEvent:
				c.dispatch(f.data)
			case sioDisconnect:
				return errServerDisconnect
			}
		}
	}
}

func (c *Channel) dispatch(data json.RawMessage) {
	name, args, err := decodeEvent(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("dropping malformed event")
		return
	}
	metrics.ChannelEvents.WithLabelValues("in", name).Inc()

	c.mu.RLock()
	handlers := c.handlers[name]
	c.mu.RUnlock()

	var first json.RawMessage
	if len(args) > 0 {
		first = args[0]
	}
	for _, fn := range handlers {
		fn(first)
	}
}

func (c *Channel) write(conn *websocket.Conn, packet string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, []byte(packet))
}

func (c *Channel) setState(connected bool, err error, attempt int) {
	c.mu.Lock()
	prev := c.state
	c.state = State{Connected: connected, Attempt: attempt, Since: prev.Since}
	if err != nil {
		c.state.LastError = err.Error()
	}
	if prev.Connected != connected || prev.Since.IsZero() {
		c.state.Since = time.Now()
	}
	state := c.state
	watchers := append([]func(State){}, c.watchers...)
	c.mu.Unlock()

	if connected {
		metrics.ChannelConnected.Set(1)
	} else {
		metrics.ChannelConnected.Set(0)
	}
	for _, fn := range watchers {
		fn(state)
	}
}

func readFrame(conn *websocket.Conn) (frame, error) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return frame{}, err
		}
		if kind != websocket.TextMessage {
			continue // binary attachments are not used by the chat service
		}
		return decodeFrame(string(data))
	}
}

// socketURL maps the service origin to its Engine.IO websocket endpoint.
func socketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported socket url scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
