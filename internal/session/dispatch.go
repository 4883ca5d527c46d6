package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxlane/janusctl/internal/observability"
	"github.com/voxlane/janusctl/internal/protocol"
)

// Request describes one outbound gateway command.
//
// Transaction may be pre-allocated by the caller; this is how two-phase
// callers subscribe to the asynchronous completion before the request is on
// the wire. When empty the dispatcher allocates one.
type Request struct {
	Command     string
	Payload     map[string]any
	SessionID   string
	HandleID    string
	Transaction string
	SuccessTag  string
}

// Dispatcher builds, sends, and validates single correlated commands.
type Dispatcher struct {
	base      string
	transport Transport
	timeout   time.Duration
	log       zerolog.Logger
}

func NewDispatcher(base string, transport Transport, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		base:      base,
		transport: transport,
		timeout:   timeout,
		log:       logger.With().Str("component", "dispatch").Logger(),
	}
}

// Send merges the payload with the command envelope fields, POSTs it to the
// routed URI, and validates the synchronous reply. The returned envelope is
// the validated synchronous acknowledgement; asynchronous completions arrive
// through the poll loop under the same transaction.
func (d *Dispatcher) Send(ctx context.Context, req Request) (*protocol.Envelope, error) {
	txn := req.Transaction
	if txn == "" {
		txn = NewTransaction()
	}
	body := make(map[string]any, len(req.Payload)+2)
	for k, v := range req.Payload {
		body[k] = v
	}
	body["janus"] = req.Command
	body["transaction"] = txn

	uri := d.base
	if req.SessionID != "" {
		uri += "/" + req.SessionID
	}
	if req.HandleID != "" {
		uri += "/" + req.HandleID
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	env, err := d.exchange(ctx, uri, body, txn, req.SuccessTag)
	observability.RecordCommand(req.Command, err == nil, time.Since(start))
	if err != nil {
		d.log.Debug().
			Str("command", req.Command).
			Str("transaction", txn).
			Err(err).
			Msg("command failed")
		return nil, err
	}
	d.log.Debug().
		Str("command", req.Command).
		Str("transaction", txn).
		Str("tag", env.Janus).
		Msg("command acknowledged")
	return env, nil
}

func (d *Dispatcher) exchange(ctx context.Context, uri string, body map[string]any, txn, successTag string) (*protocol.Envelope, error) {
	resp, err := d.transport.PostJSON(ctx, uri, body)
	if err != nil {
		return nil, &protocol.TransportError{Cause: err}
	}
	if resp.Status < 200 || resp.Status > 299 {
		return nil, &protocol.TransportError{Status: resp.Status}
	}
	env, err := protocol.DecodeEnvelope(resp.Body)
	if err != nil {
		return nil, err
	}
	want := successTag
	if want == "" {
		want = protocol.TagSuccess
	}
	if env.Janus != want {
		return nil, &protocol.TagMismatchError{Want: want, Got: env.Janus, Gateway: env.Error}
	}
	if env.Transaction != txn {
		return nil, &protocol.TxnMismatchError{Sent: txn, Got: env.Transaction}
	}
	return env, nil
}
