package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voxlane/janusctl/internal/protocol"
)

var (
	ErrNotConnected     = errors.New("session: not connected")
	ErrAlreadyConnected = errors.New("session: already connected")
	ErrSessionClosed    = errors.New("session: closed")
	ErrHandleNotFound   = errors.New("session: plugin handle not found")
)

// State is the session lifecycle phase.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
)

// ErrorHandler receives session-level failures no command caller is waiting
// on, such as poll-cycle errors and keepalive failures.
type ErrorHandler func(err error)

// EventHandler receives correlated events that arrived after their waiter
// gave up, or that never had one.
type EventHandler func(transaction string, payload map[string]any, env *protocol.Envelope)

// Session is the client-side state machine for one gateway session. It owns
// the session id, the transaction registry, and the single long-poll
// connection all asynchronous completions arrive on.
type Session struct {
	cfg       Config
	transport Transport
	registry  *Registry
	log       zerolog.Logger
	rng       *rand.Rand

	mu         sync.Mutex
	state      State
	base       string
	id         string
	dispatcher *Dispatcher
	handles    map[string]*Handle
	loopCancel context.CancelFunc
	pollDone   chan struct{}
	kaDone     chan struct{}
	onError    ErrorHandler
	onEvent    EventHandler
}

func New(cfg Config) *Session {
	cfg = cfg.WithDefaults()
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Session{
		cfg:       cfg,
		transport: cfg.Transport,
		registry:  NewRegistry(),
		log:       logger.With().Str("component", "session").Logger(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		state:     StateDisconnected,
		handles:   make(map[string]*Handle),
	}
}

// OnSessionError registers the session-level error callback.
func (s *Session) OnSessionError(fn ErrorHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// OnEvent registers the callback for unclaimed correlated events.
func (s *Session) OnEvent(fn EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = fn
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID reports the gateway-assigned session id, empty unless connected or
// disconnecting.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Connect normalizes uri, creates a gateway session, and starts the
// long-poll loop. A session that has disconnected may connect again.
func (s *Session) Connect(ctx context.Context, uri string) error {
	base, err := normalizeBaseURI(uri)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.base = base
	s.dispatcher = NewDispatcher(base, s.transport, s.cfg.RequestTimeout, s.log)
	d := s.dispatcher
	s.mu.Unlock()

	env, err := d.Send(ctx, Request{Command: protocol.CmdCreate})
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return err
	}
	id, err := idFromData(env.Data)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return fmt.Errorf("session: create: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	pollDone := make(chan struct{})
	var kaDone chan struct{}
	if s.cfg.KeepaliveInterval > 0 {
		kaDone = make(chan struct{})
	}

	s.mu.Lock()
	s.id = id
	s.state = StateConnected
	s.loopCancel = cancel
	s.pollDone = pollDone
	s.kaDone = kaDone
	s.mu.Unlock()

	go s.pollLoop(loopCtx, id, pollDone)
	if kaDone != nil {
		go s.keepaliveLoop(loopCtx, id, d, kaDone)
	}

	s.log.Info().Str("session_id", id).Str("gateway", base).Msg("session connected")
	return nil
}

// Disconnect destroys the gateway session, stops the poll loop, aborts the
// in-flight poll request, and fails any pending correlated waits. On a
// destroy failure the session stays connected and polling.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.state = StateDisconnecting
	id := s.id
	d := s.dispatcher
	s.mu.Unlock()

	if _, err := d.Send(ctx, Request{Command: protocol.CmdDestroy, SessionID: id}); err != nil {
		s.mu.Lock()
		s.state = StateConnected
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	cancel := s.loopCancel
	pollDone := s.pollDone
	kaDone := s.kaDone
	s.loopCancel = nil
	s.pollDone = nil
	s.kaDone = nil
	s.id = ""
	s.handles = make(map[string]*Handle)
	s.state = StateDisconnected
	s.mu.Unlock()

	cancel()
	<-pollDone
	if kaDone != nil {
		<-kaDone
	}
	s.registry.FailAll(ErrSessionClosed)

	s.log.Info().Str("session_id", id).Msg("session disconnected")
	return nil
}

// Attach activates a plugin. Short names expand under the fixed plugin
// prefix; fully qualified namespaces pass through unchanged. The handle is
// registered under the short name.
func (s *Session) Attach(ctx context.Context, name string) (*Handle, error) {
	id, d, err := s.requireConnected()
	if err != nil {
		return nil, err
	}
	ns := strings.TrimSpace(name)
	if !strings.Contains(ns, ".") {
		ns = protocol.PluginPrefix + ns
	}
	short := strings.TrimPrefix(ns, protocol.PluginPrefix)

	env, err := d.Send(ctx, Request{
		Command:   protocol.CmdAttach,
		SessionID: id,
		Payload:   map[string]any{"plugin": ns},
	})
	if err != nil {
		return nil, err
	}
	handleID, err := idFromData(env.Data)
	if err != nil {
		return nil, fmt.Errorf("session: attach: %w", err)
	}

	h := &Handle{session: s, id: handleID, plugin: ns, short: short}
	s.mu.Lock()
	s.handles[short] = h
	s.mu.Unlock()

	s.log.Info().Str("plugin", ns).Str("handle_id", handleID).Msg("plugin attached")
	return h, nil
}

// Handle looks up an attached plugin by short name.
func (s *Session) Handle(short string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[short]
	return h, ok
}

// Plugins reports attached plugins as short name to handle id.
func (s *Session) Plugins() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.handles))
	for short, h := range s.handles {
		out[short] = h.id
	}
	return out
}

func (s *Session) requireConnected() (string, *Dispatcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.id == "" {
		return "", nil, ErrNotConnected
	}
	return s.id, s.dispatcher, nil
}

func (s *Session) keepaliveLoop(ctx context.Context, sessionID string, d *Dispatcher, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := d.Send(ctx, Request{
			Command:    protocol.CmdKeepalive,
			SessionID:  sessionID,
			SuccessTag: protocol.TagAck,
		}); err != nil && ctx.Err() == nil {
			s.reportError(fmt.Errorf("session: keepalive: %w", err))
		}
	}
}

func (s *Session) reportError(err error) {
	s.mu.Lock()
	cb := s.onError
	s.mu.Unlock()
	s.log.Warn().Err(err).Msg("session error")
	if cb != nil {
		cb(err)
	}
}

func idFromData(data json.RawMessage) (string, error) {
	var fields struct {
		ID protocol.ID `json:"id"`
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: response missing data", protocol.ErrMalformedEnvelope)
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", fmt.Errorf("%w: data: %v", protocol.ErrMalformedEnvelope, err)
	}
	if fields.ID == "" {
		return "", fmt.Errorf("%w: response missing id", protocol.ErrMalformedEnvelope)
	}
	return string(fields.ID), nil
}

func normalizeBaseURI(raw string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("session: invalid gateway uri %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("session: unsupported gateway scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("session: gateway uri %q missing host", raw)
	}
	return trimmed, nil
}

// Info probes a gateway endpoint without creating a session. The reply must
// carry the server_info tag; its data object is returned.
func Info(ctx context.Context, uri string, transport Transport) (map[string]any, error) {
	base, err := normalizeBaseURI(uri)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		transport = NewHTTPTransport(nil)
	}
	d := NewDispatcher(base, transport, DefaultConfig().RequestTimeout, log.Logger)
	env, err := d.Send(ctx, Request{Command: protocol.CmdInfo, SuccessTag: protocol.TagServerInfo})
	if err != nil {
		return nil, err
	}
	return env.DataFields()
}
