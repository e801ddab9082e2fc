package logward

import (
	"encoding/json"
)

// NDJSONLine renders an entry as one JSON object (no trailing
// newline): timestamp in epoch milliseconds, level name, message and
// the metadata fields flattened alongside. Reserved keys win over
// colliding metadata keys.
func NDJSONLine(e Entry) ([]byte, error) {
	obj := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		obj[k] = v
	}
	obj["timestamp"] = e.UnixMillis()
	obj["level"] = e.Level.String()
	obj["message"] = e.Message
	return json.Marshal(obj)
}
