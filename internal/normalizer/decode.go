package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"thermostat_runtime/internal/session"
)

// Decode splits a request body into raw payloads. It accepts a single object,
// a JSON array, or a batch of the form {"events": [...]}. Numbers are kept as
// json.Number so rounding happens once, in Normalize.
func Decode(body []byte) ([]map[string]any, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", session.ErrMalformedEvent)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	if body[0] == '[' {
		var list []map[string]any
		if err := dec.Decode(&list); err != nil {
			return nil, fmt.Errorf("%w: %v", session.ErrMalformedEvent, err)
		}
		return list, nil
	}

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrMalformedEvent, err)
	}
	raw, ok := obj["events"].([]any)
	if !ok {
		return []map[string]any{obj}, nil
	}
	out := make([]map[string]any, 0, len(raw))
	for i, e := range raw {
		m, ok := asMap(e)
		if !ok {
			return nil, fmt.Errorf("%w: events[%d] is not an object", session.ErrMalformedEvent, i)
		}
		out = append(out, m)
	}
	return out, nil
}
