package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxlane/janusctl/internal/testutil/testlog"
)

func TestConnectAssignsSessionID(t *testing.T) {
	testlog.Start(t)
	gw := newFakeGateway(t)
	s := New(testConfig())
	ctx := context.Background()

	if err := s.Connect(ctx, gw.url()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if s.State() != StateConnected {
		t.Fatalf("state=%s", s.State())
	}
	if s.ID() != "S1" {
		t.Fatalf("session id=%q", s.ID())
	}

	if err := s.Disconnect(ctx); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if s.State() != StateDisconnected {
		t.Fatalf("state=%s", s.State())
	}
	if s.ID() != "" {
		t.Fatalf("session id survived disconnect: %q", s.ID())
	}
}

func TestCommandsRequireConnection(t *testing.T) {
	testlog.Start(t)
	transport := newCountingTransport()
	cfg := testConfig()
	cfg.Transport = transport
	s := New(cfg)
	ctx := context.Background()

	if _, err := s.Attach(ctx, "echo"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("attach: %v", err)
	}
	if err := s.Disconnect(ctx); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("disconnect: %v", err)
	}
	if n := transport.posts.Load() + transport.gets.Load(); n != 0 {
		t.Fatalf("rejected commands reached the transport %d times", n)
	}
}

func TestConnectRejectsBadURI(t *testing.T) {
	testlog.Start(t)
	transport := newCountingTransport()
	cfg := testConfig()
	cfg.Transport = transport
	s := New(cfg)

	for _, uri := range []string{"ftp://gateway:8088/janus", "http://", "not a uri"} {
		if err := s.Connect(context.Background(), uri); err == nil {
			t.Fatalf("uri %q accepted", uri)
		}
	}
	if s.State() != StateDisconnected {
		t.Fatalf("state=%s", s.State())
	}
	if n := transport.posts.Load(); n != 0 {
		t.Fatalf("invalid uris reached the transport %d times", n)
	}
}

func TestConnectWhileConnected(t *testing.T) {
	testlog.Start(t)
	gw := newFakeGateway(t)
	s := New(testConfig())
	ctx := context.Background()

	if err := s.Connect(ctx, gw.url()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Disconnect(ctx)

	if err := s.Connect(ctx, gw.url()); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("second connect: %v", err)
	}
}

func TestConnectFailureLeavesDisconnected(t *testing.T) {
	testlog.Start(t)
	gw := newFakeGateway(t)
	gw.srv.Close()

	s := New(testConfig())
	if err := s.Connect(context.Background(), gw.url()); err == nil {
		t.Fatalf("connect to closed gateway succeeded")
	}
	if s.State() != StateDisconnected {
		t.Fatalf("state=%s", s.State())
	}
}

func TestReconnectAfterDisconnect(t *testing.T) {
	testlog.Start(t)
	gw := newFakeGateway(t)
	s := New(testConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := s.Connect(ctx, gw.url()); err != nil {
			t.Fatalf("connect %d: %v", i, err)
		}
		if err := s.Disconnect(ctx); err != nil {
			t.Fatalf("disconnect %d: %v", i, err)
		}
	}
}

func TestDisconnectStopsPolling(t *testing.T) {
	testlog.Start(t)
	gw := newFakeGateway(t)
	transport := newCountingTransport()
	cfg := testConfig()
	cfg.Transport = transport
	s := New(cfg)
	ctx := context.Background()

	if err := s.Connect(ctx, gw.url()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if transport.gets.Load() == 0 {
		t.Fatalf("poll loop never issued a GET")
	}
	if err := s.Disconnect(ctx); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	settled := transport.gets.Load()
	time.Sleep(80 * time.Millisecond)
	if got := transport.gets.Load(); got != settled {
		t.Fatalf("polling continued after disconnect: %d -> %d", settled, got)
	}
}

func TestDisconnectFailsPendingWaits(t *testing.T) {
	testlog.Start(t)
	gw := newFakeGateway(t)
	gw.messageMode = "ack-only"
	s := New(testConfig())
	ctx := context.Background()

	if err := s.Connect(ctx, gw.url()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	h, err := s.Attach(ctx, "echo")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	sendErr := make(chan error, 1)
	go func() {
		_, _, err := h.Send(ctx, map[string]any{"request": "hang"})
		sendErr <- err
	}()

	// Let the message ack land and the waiter register.
	deadline := time.Now().Add(time.Second)
	for s.registry.Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("waiter never registered")
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := s.Disconnect(ctx); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	select {
	case err := <-sendErr:
		if !errors.Is(err, ErrSessionClosed) {
			t.Fatalf("pending send resolved with %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("pending send not failed on disconnect")
	}
	if s.registry.Pending() != 0 {
		t.Fatalf("pending=%d after disconnect", s.registry.Pending())
	}
}

func TestAttachRegistersHandle(t *testing.T) {
	testlog.Start(t)
	gw := newFakeGateway(t)
	s := New(testConfig())
	ctx := context.Background()

	if err := s.Connect(ctx, gw.url()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Disconnect(ctx)

	h, err := s.Attach(ctx, "echo")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if h.Plugin() != "janus.plugin.echo" {
		t.Fatalf("short name not expanded: %q", h.Plugin())
	}
	if h.ID() != "H1" {
		t.Fatalf("handle id=%q", h.ID())
	}
	if got, ok := s.Handle("echo"); !ok || got != h {
		t.Fatalf("handle not registered under short name")
	}
	if plugins := s.Plugins(); plugins["echo"] != "H1" {
		t.Fatalf("plugins=%v", plugins)
	}

	full, err := s.Attach(ctx, "custom.vendor.transcode")
	if err != nil {
		t.Fatalf("attach qualified: %v", err)
	}
	if full.Plugin() != "custom.vendor.transcode" {
		t.Fatalf("qualified namespace rewritten: %q", full.Plugin())
	}
}

func TestInfoProbe(t *testing.T) {
	testlog.Start(t)
	gw := newFakeGateway(t)

	data, err := Info(context.Background(), gw.url(), nil)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if data["name"] != "fakegateway" {
		t.Fatalf("data=%v", data)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{PollInterval: 200 * time.Millisecond}.WithDefaults()
	if cfg.Backoff.InitialDelay != 200*time.Millisecond {
		t.Fatalf("backoff initial=%v", cfg.Backoff.InitialDelay)
	}
	if cfg.KeepaliveInterval != 25*time.Second {
		t.Fatalf("keepalive=%v", cfg.KeepaliveInterval)
	}
	if cfg.Transport == nil {
		t.Fatalf("transport not defaulted")
	}

	disabled := Config{KeepaliveInterval: -1}.WithDefaults()
	if disabled.KeepaliveInterval != -1 {
		t.Fatalf("disabled keepalive overwritten: %v", disabled.KeepaliveInterval)
	}
}

func TestNormalizeBaseURI(t *testing.T) {
	testlog.Start(t)
	got, err := normalizeBaseURI("http://gateway:8088/janus/")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "http://gateway:8088/janus" {
		t.Fatalf("got=%q", got)
	}
	if _, err := normalizeBaseURI("ws://gateway/janus"); err == nil {
		t.Fatalf("non-http scheme accepted")
	}
	if _, err := normalizeBaseURI("http:///janus"); err == nil {
		t.Fatalf("hostless uri accepted")
	}
}
