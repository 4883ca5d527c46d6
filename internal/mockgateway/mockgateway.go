// Package mockgateway is a local gateway simulator for development and
// integration tests. It implements the long-poll wire protocol: session
// create/destroy, plugin attach/detach, keepalive, two-phase plugin
// messaging, and the session event poll.
package mockgateway

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultPollWait = 25 * time.Second

// Plugin produces the asynchronous event payload for one plugin message.
// It returns the plugindata object for the event envelope and an optional
// answer jsep.
type Plugin func(body, jsep map[string]any) (plugindata map[string]any, answer map[string]any)

// EchoPlugin replies with the message body nested under data.result, which
// exercises the client's two-level unwrap path.
func EchoPlugin(body, jsep map[string]any) (map[string]any, map[string]any) {
	return map[string]any{"data": map[string]any{"result": body}}, nil
}

type liveSession struct {
	handles map[string]string // handle id -> plugin namespace
	events  chan gin.H
}

// Server holds gateway state: live sessions, their attachments, and the
// per-session event queues the poll endpoint drains.
type Server struct {
	mu       sync.Mutex
	sessions map[string]*liveSession
	plugins  map[string]Plugin
	nextID   atomic.Uint64
	pollWait time.Duration
	log      zerolog.Logger
}

func New() *Server {
	s := &Server{
		sessions: make(map[string]*liveSession),
		plugins:  make(map[string]Plugin),
		pollWait: defaultPollWait,
		log:      log.With().Str("component", "mockgateway").Logger(),
	}
	s.nextID.Store(1000)
	s.RegisterPlugin("janus.plugin.echo", EchoPlugin)
	return s
}

// SetPollWait bounds how long an empty poll blocks before returning a
// keepalive envelope. Tests shorten this.
func (s *Server) SetPollWait(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollWait = d
}

func (s *Server) RegisterPlugin(namespace string, p Plugin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plugins[namespace] = p
}

func (s *Server) newID() string {
	return strconv.FormatUint(s.nextID.Add(1), 10)
}

func (s *Server) session(id string) (*liveSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Sessions reports the number of live sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) createSession() string {
	id := s.newID()
	s.mu.Lock()
	s.sessions[id] = &liveSession{
		handles: make(map[string]string),
		events:  make(chan gin.H, 32),
	}
	s.mu.Unlock()
	s.log.Info().Str("session_id", id).Msg("session created")
	return id
}

func (s *Server) destroySession(id string) bool {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		s.log.Info().Str("session_id", id).Msg("session destroyed")
	}
	return ok
}
