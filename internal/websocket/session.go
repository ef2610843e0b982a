package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ai-workspace-editor/internal/pkg/logger"

	fastws "github.com/fasthttp/websocket"
)

const (
	defaultPingInterval     = 30 * time.Second
	defaultMaxReconnects    = 5
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteWait        = 10 * time.Second
	defaultMaxMessageSize   = 8 * 1024 * 1024

	logModule = "Session"
)

var (
	ErrNotConnected   = errors.New("websocket is not connected")
	ErrNoAccessToken  = errors.New("no access token available")
	ErrSessionClosed  = errors.New("session closed by client")
	ErrConnectionLost = errors.New("connection lost")
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateOpen
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conn is the part of a websocket connection the session drives.
// *fastws.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// DialFunc opens a transport to url.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// TokenSource hands out access tokens for the auth frame.
type TokenSource interface {
	GetAccessToken() (string, bool)
	RefreshAccessToken(ctx context.Context) (string, error)
	CanRefresh() bool
}

type StreamHandler func(frame *Frame)

// DisconnectHandler is told why an established connection went away.
type DisconnectHandler func(err error)

type StateListener func(from, to State)

type Options struct {
	PingInterval     time.Duration
	MaxReconnects    int
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	MaxMessageSize   int64
	ReconnectDelay   func(attempt int) time.Duration
	Dial             DialFunc
}

func (o *Options) withDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	// zero means "use the default"; negative disables reconnects
	if o.MaxReconnects == 0 {
		o.MaxReconnects = defaultMaxReconnects
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.ReconnectDelay == nil {
		o.ReconnectDelay = ReconnectDelay
	}
	if o.Dial == nil {
		o.Dial = DialWebsocket(o.HandshakeTimeout)
	}
}

// DialWebsocket returns a DialFunc backed by the fasthttp websocket client.
func DialWebsocket(handshakeTimeout time.Duration) DialFunc {
	dialer := &fastws.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	return func(ctx context.Context, url string) (Conn, error) {
		conn, resp, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial %s: %w (HTTP %d)", url, err, resp.StatusCode)
			}
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return conn, nil
	}
}

// Session is a single authenticated, auto-reconnecting stream connection.
//
// One read pump goroutine per connection delivers frames in arrival order to
// every subscriber. A keepalive goroutine sends "ping" frames while Open.
type Session struct {
	url         string
	tokens      TokenSource
	opts        Options
	logger      logger.ILogger
	frameLogger logger.ILogger

	// connectMu serializes dial + auth so only one transport is ever being set up.
	connectMu sync.Mutex

	mu                sync.Mutex
	state             State
	conn              Conn
	generation        uint64
	epoch             uint64
	reconnectAttempts int
	reconnecting      bool
	reconnectTimer    *time.Timer
	stopKeepalive     chan struct{}

	writeMu sync.Mutex

	handlersMu         sync.RWMutex
	nextHandlerId      uint64
	streamHandlers     map[uint64]StreamHandler
	disconnectHandlers map[uint64]DisconnectHandler
	stateListeners     []StateListener
}

func NewSession(url string, tokens TokenSource, opts Options, log logger.ILogger, frameLog logger.ILogger) *Session {
	opts.withDefaults()
	if frameLog == nil {
		frameLog = log
	}
	return &Session{
		url:                url,
		tokens:             tokens,
		opts:               opts,
		logger:             log,
		frameLogger:        frameLog,
		state:              StateDisconnected,
		streamHandlers:     make(map[uint64]StreamHandler),
		disconnectHandlers: make(map[uint64]DisconnectHandler),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsConnected() bool {
	return s.State() == StateOpen
}

// ReconnectAttempts is the number of consecutive reconnect attempts made so far.
func (s *Session) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectAttempts
}

// Connect opens the transport and sends the auth frame. It returns as soon as
// the auth frame is written; the server's verdict is not awaited, so a request
// sent right after Connect can race the server's own auth processing.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	return s.connect(ctx, epoch, false)
}

func (s *Session) connect(ctx context.Context, epoch uint64, reconnect bool) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state == StateOpen {
		s.mu.Unlock()
		return nil
	}
	fallback := s.state
	if !reconnect {
		fallback = StateDisconnected
	}
	s.mu.Unlock()

	// 1. Auth token first: no point in dialing without one
	token, err := s.accessToken(ctx, reconnect)
	if err != nil {
		s.setStateFor(epoch, fallback)
		return err
	}

	// 2. Open the transport
	if !reconnect {
		s.setStateFor(epoch, StateConnecting)
	}
	conn, err := s.opts.Dial(ctx, s.url)
	if err != nil {
		s.setStateFor(epoch, fallback)
		s.logger.Error(logModule, "Error creating WebSocket connection", map[string]interface{}{
			"error": err.Error(),
			"url":   s.url,
		})
		return err
	}
	conn.SetReadLimit(s.opts.MaxMessageSize)
	s.logger.Info(logModule, "WebSocket connected", map[string]interface{}{"url": s.url})

	// 3. Install it unless a Disconnect happened while dialing
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrSessionClosed
	}
	from := s.state
	s.generation++
	gen := s.generation
	s.conn = conn
	s.state = StateAuthenticating
	s.mu.Unlock()
	s.notifyState(from, StateAuthenticating)

	// 4. Authenticate (fire and forget)
	if err := s.writeTo(conn, Frame{Type: FrameAuth, Token: token}); err != nil {
		s.mu.Lock()
		if s.generation == gen {
			s.conn = nil
			s.generation++
			s.state = fallback
		}
		s.mu.Unlock()
		s.notifyState(StateAuthenticating, fallback)
		_ = conn.Close()
		return fmt.Errorf("send auth: %w", err)
	}
	s.frameLogger.Debug(logModule, "Sent authentication message", nil)

	// 5. Open: keepalive + read pump
	stop := make(chan struct{})
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = StateOpen
	s.reconnectAttempts = 0
	s.stopKeepalive = stop
	s.mu.Unlock()
	s.notifyState(StateAuthenticating, StateOpen)

	go s.keepalive(conn, gen, stop)
	go s.readPump(conn, gen)

	return nil
}

func (s *Session) accessToken(ctx context.Context, allowRefresh bool) (string, error) {
	if token, ok := s.tokens.GetAccessToken(); ok {
		return token, nil
	}
	if allowRefresh && s.tokens.CanRefresh() {
		token, err := s.tokens.RefreshAccessToken(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoAccessToken, err)
		}
		return token, nil
	}
	return "", ErrNoAccessToken
}

// Disconnect says goodbye if it can, drops the transport and cancels every
// timer. It also resets the reconnect budget.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.epoch++
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.reconnectAttempts = 0
	s.reconnecting = false
	s.stopKeepaliveLocked()

	conn := s.conn
	wasOpen := s.state == StateOpen
	from := s.state
	s.conn = nil
	s.generation++
	s.state = StateDisconnected
	s.mu.Unlock()

	if from != StateDisconnected {
		s.notifyState(from, StateDisconnected)
	}
	if conn == nil {
		return
	}

	if wasOpen {
		if err := s.writeTo(conn, Frame{Type: FrameQuit}); err != nil {
			s.logger.Warn(logModule, "Failed to send quit message", map[string]interface{}{"error": err.Error()})
		} else {
			s.frameLogger.Debug(logModule, "Sent quit message", nil)
		}
		s.writeMu.Lock()
		_ = conn.WriteControl(fastws.CloseMessage,
			fastws.FormatCloseMessage(fastws.CloseNormalClosure, ""),
			time.Now().Add(s.opts.WriteWait))
		s.writeMu.Unlock()
	}
	_ = conn.Close()

	s.notifyDisconnect(ErrSessionClosed)
}

// SendStreamRequest writes payload as-is. Nothing is queued: when the session
// is not Open the call fails with ErrNotConnected.
func (s *Session) SendStreamRequest(payload interface{}) error {
	s.mu.Lock()
	conn := s.conn
	open := s.state == StateOpen
	s.mu.Unlock()

	if !open || conn == nil {
		return ErrNotConnected
	}
	return s.writeTo(conn, payload)
}

// Subscribe registers handler for every stream and stream_end frame.
// The returned func removes it.
func (s *Session) Subscribe(handler StreamHandler) func() {
	s.handlersMu.Lock()
	s.nextHandlerId++
	id := s.nextHandlerId
	s.streamHandlers[id] = handler
	s.handlersMu.Unlock()

	return func() {
		s.handlersMu.Lock()
		delete(s.streamHandlers, id)
		s.handlersMu.Unlock()
	}
}

// OnDisconnect registers handler for transport loss, including Disconnect.
func (s *Session) OnDisconnect(handler DisconnectHandler) func() {
	s.handlersMu.Lock()
	s.nextHandlerId++
	id := s.nextHandlerId
	s.disconnectHandlers[id] = handler
	s.handlersMu.Unlock()

	return func() {
		s.handlersMu.Lock()
		delete(s.disconnectHandlers, id)
		s.handlersMu.Unlock()
	}
}

func (s *Session) OnStateChange(listener StateListener) {
	s.handlersMu.Lock()
	s.stateListeners = append(s.stateListeners, listener)
	s.handlersMu.Unlock()
}

// readPump pumps frames from the connection to the subscribers.
func (s *Session) readPump(conn Conn, gen uint64) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			s.handleClose(gen, err)
			return
		}
		s.handleMessage(messageType, data)
	}
}

func (s *Session) handleMessage(messageType int, data []byte) {
	if messageType != fastws.TextMessage {
		s.logger.Warn(logModule, "Received invalid WebSocket message", map[string]interface{}{
			"message_type": messageType,
			"size":         len(data),
		})
		return
	}

	frame, err := DecodeFrame(data)
	if err != nil {
		s.logger.Error(logModule, "Failed to parse WebSocket message", map[string]interface{}{
			"error": err.Error(),
			"size":  len(data),
		})
		return
	}

	s.frameLogger.Debug(logModule, "WebSocket message received", map[string]interface{}{"type": frame.Type})

	switch {
	case frame.Type == FramePong:
		s.frameLogger.Debug(logModule, "Received pong message", nil)
	case frame.IsStream():
		s.dispatch(frame)
	default:
		s.logger.Debug(logModule, "Ignoring frame", map[string]interface{}{"type": frame.Type})
	}
}

func (s *Session) dispatch(frame *Frame) {
	s.handlersMu.RLock()
	handlers := make([]StreamHandler, 0, len(s.streamHandlers))
	for _, h := range s.streamHandlers {
		handlers = append(handlers, h)
	}
	s.handlersMu.RUnlock()

	for _, h := range handlers {
		s.safeCall(func() { h(frame) })
	}
}

func (s *Session) handleClose(gen uint64, cause error) {
	s.mu.Lock()
	if gen != s.generation || s.conn == nil {
		// Disconnect already tore this connection down.
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil
	s.generation++
	s.stopKeepaliveLocked()

	code := closeCode(cause)
	abnormal := code != fastws.CloseNormalClosure && code != fastws.CloseGoingAway
	from := s.state
	if abnormal {
		s.state = StateReconnecting
	} else {
		s.state = StateClosed
	}
	to := s.state
	s.mu.Unlock()

	_ = conn.Close()
	s.logger.Info(logModule, "WebSocket disconnected", map[string]interface{}{
		"code":  code,
		"error": cause.Error(),
	})
	s.notifyState(from, to)
	s.notifyDisconnect(fmt.Errorf("%w: %v", ErrConnectionLost, cause))

	if abnormal {
		s.mu.Lock()
		s.scheduleReconnectLocked()
		s.mu.Unlock()
	}
}

// scheduleReconnectLocked arms the next reconnect timer. Caller holds s.mu.
func (s *Session) scheduleReconnectLocked() {
	if s.reconnecting || s.state != StateReconnecting {
		return
	}
	if s.reconnectAttempts >= s.opts.MaxReconnects {
		s.state = StateClosed
		s.logger.Error(logModule, "Max reconnection attempts reached", map[string]interface{}{
			"attempts": s.reconnectAttempts,
		})
		go s.notifyState(StateReconnecting, StateClosed)
		return
	}

	s.reconnecting = true
	s.reconnectAttempts++
	attempt := s.reconnectAttempts
	epoch := s.epoch
	delay := s.opts.ReconnectDelay(attempt)

	s.logger.Info(logModule, "Attempting to reconnect", map[string]interface{}{
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
	})

	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.runReconnect(epoch)
	})
}

func (s *Session) runReconnect(epoch uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.HandshakeTimeout)
	defer cancel()

	err := s.connect(ctx, epoch, true)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	s.reconnecting = false
	s.reconnectTimer = nil
	if err == nil {
		s.logger.Info(logModule, "Reconnection successful", nil)
		return
	}

	s.logger.Warn(logModule, "Reconnection attempt failed", map[string]interface{}{
		"attempt": s.reconnectAttempts,
		"error":   err.Error(),
	})
	s.state = StateReconnecting
	s.scheduleReconnectLocked()
}

func (s *Session) keepalive(conn Conn, gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			current := s.generation == gen && s.state == StateOpen
			s.mu.Unlock()
			if !current {
				return
			}
			if err := s.writeTo(conn, Frame{Type: FramePing}); err != nil {
				s.logger.Warn(logModule, "Ping failed", map[string]interface{}{"error": err.Error()})
				return
			}
			s.frameLogger.Debug(logModule, "Sent ping message", nil)
		}
	}
}

func (s *Session) stopKeepaliveLocked() {
	if s.stopKeepalive != nil {
		close(s.stopKeepalive)
		s.stopKeepalive = nil
	}
}

func (s *Session) writeTo(conn Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait)); err != nil {
		return err
	}
	return conn.WriteMessage(fastws.TextMessage, data)
}

// setStateFor changes state unless a Disconnect has happened since epoch was read.
func (s *Session) setStateFor(epoch uint64, to State) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from != to {
		s.notifyState(from, to)
	}
}

func (s *Session) notifyState(from, to State) {
	s.handlersMu.RLock()
	listeners := append([]StateListener(nil), s.stateListeners...)
	s.handlersMu.RUnlock()

	for _, l := range listeners {
		s.safeCall(func() { l(from, to) })
	}
}

func (s *Session) notifyDisconnect(err error) {
	s.handlersMu.RLock()
	handlers := make([]DisconnectHandler, 0, len(s.disconnectHandlers))
	for _, h := range s.disconnectHandlers {
		handlers = append(handlers, h)
	}
	s.handlersMu.RUnlock()

	for _, h := range handlers {
		s.safeCall(func() { h(err) })
	}
}

// safeCall keeps a misbehaving listener from killing the read pump.
func (s *Session) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(logModule, "Listener panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
	}()
	fn()
}

func closeCode(err error) int {
	var ce *fastws.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return fastws.CloseAbnormalClosure
}
