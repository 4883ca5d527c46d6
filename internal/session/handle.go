package session

import (
	"context"

	"github.com/voxlane/janusctl/internal/protocol"
)

// Handle scopes plugin messaging under one server-assigned attachment. It is
// owned by its Session and becomes unusable once the session disconnects.
type Handle struct {
	session *Session
	id      string
	plugin  string
	short   string
}

// ID is the server-assigned handle id.
func (h *Handle) ID() string { return h.id }

// Plugin is the fully qualified plugin namespace.
func (h *Handle) Plugin() string { return h.plugin }

// Send delivers a plugin message and waits for its asynchronous result.
//
// Completion is two-phase: the synchronous reply must carry the ack tag,
// confirming receipt only; the actual plugin result arrives later on the
// poll channel, correlated by the same transaction. A "jsep" entry in body
// is lifted to the envelope root; when absent it is omitted from the wire,
// never serialized as null. The returned payload is the unwrapped plugin
// result with any answer jsep attached.
func (h *Handle) Send(ctx context.Context, body map[string]any) (map[string]any, *protocol.Envelope, error) {
	sessionID, d, err := h.session.requireConnected()
	if err != nil {
		return nil, nil, err
	}

	payload := map[string]any{"body": splitBody(body)}
	if jsep, ok := body["jsep"]; ok && jsep != nil {
		payload["jsep"] = jsep
	}

	// Subscribe before the request is on the wire: the event can otherwise
	// win the race against the ack on a fast gateway.
	txn := NewTransaction()
	sub := h.session.registry.Register(txn)

	_, err = d.Send(ctx, Request{
		Command:     protocol.CmdMessage,
		Payload:     payload,
		SessionID:   sessionID,
		HandleID:    h.id,
		Transaction: txn,
		SuccessTag:  protocol.TagAck,
	})
	if err != nil {
		h.session.registry.Drop(txn)
		return nil, nil, err
	}

	waitCtx := ctx
	if timeout := h.session.cfg.EventTimeout; timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case out := <-sub:
		if out.Err != nil {
			return nil, out.Envelope, out.Err
		}
		return out.Payload, out.Envelope, nil
	case <-waitCtx.Done():
		h.session.registry.Drop(txn)
		return nil, nil, waitCtx.Err()
	}
}

// Detach releases the attachment on the gateway and removes the handle from
// the session registry.
func (h *Handle) Detach(ctx context.Context) error {
	sessionID, d, err := h.session.requireConnected()
	if err != nil {
		return err
	}
	if _, err := d.Send(ctx, Request{
		Command:   protocol.CmdDetach,
		SessionID: sessionID,
		HandleID:  h.id,
	}); err != nil {
		return err
	}
	h.session.mu.Lock()
	delete(h.session.handles, h.short)
	h.session.mu.Unlock()
	return nil
}

// splitBody copies body without its jsep entry.
func splitBody(body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		if k == "jsep" {
			continue
		}
		out[k] = v
	}
	return out
}
