package audit

import (
	"encoding/json"
	"strings"
)

// RedactedValue replaces the value of every sensitive key.
const RedactedValue = "***REDACTED***"

var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"accesstoken":   {},
	"refreshtoken":  {},
	"authorization": {},
	"cardnumber":    {},
	"cvv":           {},
	"expiry":        {},
}

func isSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// Redact returns a copy of v with sensitive keys masked at any depth. Maps and
// slices are copied; the input is never modified.
func Redact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isSensitive(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = Redact(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Redact(val)
		}
		return out
	default:
		return v
	}
}

// Snapshot converts v into a redacted JSON object. Values are converted
// through their JSON encoding so field names match the API. Nil, and values
// that do not encode to an object or array, yield nil; arrays are wrapped as
// {"items": [...]}.
func Snapshot(v any) map[string]any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	var obj map[string]any
	switch d := decoded.(type) {
	case map[string]any:
		obj = d
	case []any:
		obj = map[string]any{"items": d}
	default:
		return nil
	}
	return Redact(obj).(map[string]any)
}
