package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Inbound classification tags carried in the "janus" field.
const (
	TagSuccess    = "success"
	TagAck        = "ack"
	TagEvent      = "event"
	TagError      = "error"
	TagServerInfo = "server_info"
	TagKeepalive  = "keepalive"
)

// Outbound command names carried in the "janus" field.
const (
	CmdCreate    = "create"
	CmdAttach    = "attach"
	CmdMessage   = "message"
	CmdDetach    = "detach"
	CmdDestroy   = "destroy"
	CmdKeepalive = "keepalive"
	CmdInfo      = "info"
)

// PluginPrefix expands short plugin names into full namespaces.
const PluginPrefix = "janus.plugin."

// ID is a gateway-assigned identifier. Gateways emit both string and integer
// forms on the wire; ID normalizes either to its string form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("%w: id: %v", ErrMalformedEnvelope, err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: id: %v", ErrMalformedEnvelope, err)
	}
	*id = ID(n.String())
	return nil
}

// GatewayError is the error object a gateway attaches to "error" envelopes.
type GatewayError struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

// Envelope is one inbound protocol message. Outbound messages are built as
// maps by the dispatcher so arbitrary command payloads merge cleanly.
type Envelope struct {
	Janus       string          `json:"janus"`
	Transaction string          `json:"transaction,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	PluginData  json.RawMessage `json:"plugindata,omitempty"`
	JSEP        json.RawMessage `json:"jsep,omitempty"`
	Error       *GatewayError   `json:"error,omitempty"`
}

// DecodeEnvelope parses one complete inbound body. Callers must hand over the
// full body; partial JSON is never parsed.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Janus == "" {
		return nil, fmt.Errorf("%w: missing janus tag", ErrMalformedEnvelope)
	}
	return &env, nil
}

// DataFields decodes the ack-level "data" object into a generic map.
// An absent data object yields a nil map, not an error.
func (e *Envelope) DataFields() (map[string]any, error) {
	if len(e.Data) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(e.Data, &out); err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrMalformedEnvelope, err)
	}
	return out, nil
}
