package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxlane/janusctl/internal/observability"
	"github.com/voxlane/janusctl/internal/protocol"
)

// pollLoop is the session's lifeline: a perpetually re-issued GET that
// carries every asynchronous completion. It processes one envelope at a
// time and resubmits immediately after a successful cycle. Cycle errors are
// reported and retried with backoff; only cancellation stops the loop.
func (s *Session) pollLoop(ctx context.Context, sessionID string, done chan struct{}) {
	defer close(done)
	logger := s.log.With().Str("component", "poll").Str("session_id", sessionID).Logger()
	logger.Debug().Msg("poll loop started")

	attempt := 0
	for {
		if ctx.Err() != nil {
			logger.Debug().Msg("poll loop stopped")
			return
		}

		uri := fmt.Sprintf("%s/%s?rid=%d", s.base, sessionID, time.Now().UnixMilli())
		cycleCtx := ctx
		var cancel context.CancelFunc
		if s.cfg.PollTimeout > 0 {
			cycleCtx, cancel = context.WithTimeout(ctx, s.cfg.PollTimeout)
		}
		resp, err := s.transport.Get(cycleCtx, uri)
		if cancel != nil {
			cancel()
		}

		switch {
		case ctx.Err() != nil:
			logger.Debug().Msg("poll loop stopped")
			return
		case err != nil:
			attempt++
			observability.RecordPollCycle(observability.PollOutcomeTransport)
			s.reportError(&protocol.TransportError{Cause: err})
			if !s.sleepRetry(ctx, attempt) {
				return
			}
			continue
		case resp.Status < 200 || resp.Status > 299:
			attempt++
			observability.RecordPollCycle(observability.PollOutcomeTransport)
			s.reportError(&protocol.TransportError{Status: resp.Status})
			if !s.sleepRetry(ctx, attempt) {
				return
			}
			continue
		}

		env, err := protocol.DecodeEnvelope(resp.Body)
		if err != nil {
			attempt++
			observability.RecordPollCycle(observability.PollOutcomeDecode)
			s.reportError(err)
			if !s.sleepRetry(ctx, attempt) {
				return
			}
			continue
		}

		attempt = 0
		observability.RecordPollCycle(observability.PollOutcomeOK)
		s.route(env, logger)
	}
}

// route classifies one inbound envelope and resolves the waiting transaction.
// Envelopes without a transaction cannot be correlated and are dropped.
func (s *Session) route(env *protocol.Envelope, logger zerolog.Logger) {
	if env.Transaction == "" {
		observability.RecordEnvelope(observability.DeliveryDropped)
		logger.Debug().Str("tag", env.Janus).Msg("dropping uncorrelated envelope")
		return
	}

	out := Outcome{Envelope: env}
	if env.Janus == protocol.TagEvent {
		payload, err := protocol.UnwrapEvent(env)
		out.Payload, out.Err = payload, err
	} else {
		data, err := env.DataFields()
		out.Payload, out.Err = data, err
	}

	if s.registry.Fulfill(env.Transaction, out) {
		observability.RecordEnvelope(observability.DeliveryClaimed)
		return
	}

	observability.RecordEnvelope(observability.DeliveryUnclaimed)
	if env.Janus != protocol.TagEvent {
		logger.Debug().Str("tag", env.Janus).Str("transaction", env.Transaction).Msg("no waiter for envelope")
		return
	}
	s.mu.Lock()
	cb := s.onEvent
	s.mu.Unlock()
	if cb != nil {
		cb(env.Transaction, out.Payload, env)
	}
}

// sleepRetry pauses before the next poll cycle after an error. Returns false
// when the loop should stop because the session is shutting down.
func (s *Session) sleepRetry(ctx context.Context, attempt int) bool {
	delay := NextRetryDelay(s.cfg.Backoff, attempt, s.rng)
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
