package session

import (
	"math/rand"
	"testing"
	"time"

	"github.com/voxlane/janusctl/internal/testutil/testlog"
)

func TestNextRetryDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextRetryDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextRetryDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextRetryDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextRetryDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextRetryDelayJitterBounds(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	for attempt := 2; attempt <= 8; attempt++ {
		got := NextRetryDelay(cfg, attempt, rng)
		if got < 0 || got > 1500*time.Millisecond {
			t.Fatalf("attempt%d outside jitter bounds: %v", attempt, got)
		}
	}
}

func TestNextRetryDelayZeroInitialDisables(t *testing.T) {
	testlog.Start(t)
	if got := NextRetryDelay(BackoffConfig{}, 3, nil); got != 0 {
		t.Fatalf("got=%v", got)
	}
}
