package protocol

import (
	"encoding/json"
	"fmt"
)

// UnwrapEvent extracts the innermost plugin payload from an event envelope.
//
// The gateway nests plugin results up to two levels deep: plugindata may hold
// a "data" object, which may in turn hold a "result" object. The innermost
// object is the payload callers care about. A jsep offer/answer on the
// envelope root is attached to the unwrapped payload under "jsep".
func UnwrapEvent(env *Envelope) (map[string]any, error) {
	if env.Janus != TagEvent {
		return nil, fmt.Errorf("%w: unwrap of non-event tag %q", ErrMalformedEnvelope, env.Janus)
	}
	payload := make(map[string]any)
	if len(env.PluginData) > 0 {
		if err := json.Unmarshal(env.PluginData, &payload); err != nil {
			return nil, fmt.Errorf("%w: plugindata: %v", ErrMalformedEnvelope, err)
		}
	}
	if inner, ok := payload["data"].(map[string]any); ok {
		payload = inner
	}
	if inner, ok := payload["result"].(map[string]any); ok {
		payload = inner
	}
	if len(env.JSEP) > 0 {
		var jsep map[string]any
		if err := json.Unmarshal(env.JSEP, &jsep); err != nil {
			return nil, fmt.Errorf("%w: jsep: %v", ErrMalformedEnvelope, err)
		}
		payload["jsep"] = jsep
	}
	return payload, nil
}
