package utils

import "encoding/json"

// CompactJSON renders a value as single-line JSON. Map keys are emitted in
// sorted order, so output is deterministic for identical inputs. A nil or
// unmarshalable value renders as "{}"; this includes typed-nil maps, which
// json.Marshal would otherwise emit as "null".
func CompactJSON(v interface{}) string {
	bytes, err := json.Marshal(v)
	if err != nil || string(bytes) == "null" {
		return "{}"
	}
	return string(bytes)
}
