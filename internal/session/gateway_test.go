package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeGateway is a scriptable in-process gateway for engine tests. It issues
// fixed ids (S1, H1), echoes plugin messages as two-phase events, and lets a
// test override individual poll cycles through pollHook.
type fakeGateway struct {
	t      *testing.T
	srv    *httptest.Server
	events chan map[string]any

	// pollHook, when set, may take over poll cycle n (1-based). Returning
	// ok=false falls through to the normal event queue.
	pollHook func(n int) (status int, body []byte, ok bool)

	// messageMode: "echo" (default), "ack-only", "reject".
	messageMode string

	mu       sync.Mutex
	rawPosts [][]byte

	polls atomic.Int32
	posts atomic.Int32
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{
		t:      t,
		events: make(chan map[string]any, 8),
	}
	g.srv = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) url() string { return g.srv.URL }

func (g *fakeGateway) messages() [][]byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([][]byte, len(g.rawPosts))
	copy(out, g.rawPosts)
	return out
}

func (g *fakeGateway) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		g.handlePoll(w, r)
		return
	}
	g.posts.Add(1)

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		g.t.Errorf("read request body: %v", err)
		return
	}
	var req map[string]any
	if err := json.Unmarshal(raw, &req); err != nil {
		g.t.Errorf("request body not JSON: %v", err)
		return
	}
	janus, _ := req["janus"].(string)
	txn, _ := req["transaction"].(string)

	switch janus {
	case "create":
		writeJSON(w, map[string]any{
			"janus": "success", "transaction": txn,
			"data": map[string]any{"id": "S1"},
		})
	case "info":
		writeJSON(w, map[string]any{
			"janus": "server_info", "transaction": txn,
			"data": map[string]any{"name": "fakegateway", "version": 1},
		})
	case "attach":
		writeJSON(w, map[string]any{
			"janus": "success", "transaction": txn,
			"data": map[string]any{"id": "H1"},
		})
	case "destroy", "detach":
		writeJSON(w, map[string]any{
			"janus": "success", "transaction": txn,
			"data": map[string]any{"id": "S1"},
		})
	case "keepalive":
		writeJSON(w, map[string]any{"janus": "ack", "transaction": txn})
	case "message":
		g.mu.Lock()
		g.rawPosts = append(g.rawPosts, raw)
		g.mu.Unlock()
		g.handleMessage(w, req, txn)
	default:
		g.t.Errorf("unexpected command %q", janus)
	}
}

func (g *fakeGateway) handleMessage(w http.ResponseWriter, req map[string]any, txn string) {
	switch g.messageMode {
	case "reject":
		writeJSON(w, map[string]any{
			"janus": "error", "transaction": txn,
			"error": map[string]any{"code": 460, "reason": "plugin rejected message"},
		})
		return
	case "ack-only":
		writeJSON(w, map[string]any{"janus": "ack", "transaction": txn})
		return
	}

	body, _ := req["body"].(map[string]any)
	event := map[string]any{
		"janus":       "event",
		"transaction": txn,
		"sender":      "H1",
		"plugindata":  map[string]any{"data": map[string]any{"result": body}},
	}
	if jsep, ok := req["jsep"]; ok && jsep != nil {
		event["jsep"] = map[string]any{"type": "answer", "sdp": "v=0"}
	}
	g.events <- event
	writeJSON(w, map[string]any{"janus": "ack", "transaction": txn})
}

func (g *fakeGateway) handlePoll(w http.ResponseWriter, r *http.Request) {
	n := int(g.polls.Add(1))
	if g.pollHook != nil {
		if status, body, ok := g.pollHook(n); ok {
			w.WriteHeader(status)
			w.Write(body)
			return
		}
	}
	timer := time.NewTimer(25 * time.Millisecond)
	defer timer.Stop()
	select {
	case ev := <-g.events:
		writeJSON(w, ev)
	case <-timer.C:
		writeJSON(w, map[string]any{"janus": "keepalive"})
	case <-r.Context().Done():
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// countingTransport counts exchanges passing through the wrapped transport.
type countingTransport struct {
	inner Transport
	gets  atomic.Int32
	posts atomic.Int32
}

func newCountingTransport() *countingTransport {
	return &countingTransport{inner: NewHTTPTransport(nil)}
}

func (t *countingTransport) PostJSON(ctx context.Context, uri string, body any) (*Response, error) {
	t.posts.Add(1)
	return t.inner.PostJSON(ctx, uri, body)
}

func (t *countingTransport) Get(ctx context.Context, uri string) (*Response, error) {
	t.gets.Add(1)
	return t.inner.Get(ctx, uri)
}

// testConfig keeps engine tests fast: no keepalive loop, short deterministic
// backoff, quiet logger.
func testConfig() Config {
	nop := zerolog.Nop()
	return Config{
		PollTimeout:       2 * time.Second,
		RequestTimeout:    2 * time.Second,
		KeepaliveInterval: -1,
		Backoff: BackoffConfig{
			InitialDelay: 5 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     20 * time.Millisecond,
		},
		Logger: &nop,
	}
}
