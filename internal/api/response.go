package api

import (
	"bytes"
	"encoding/json"
)

// UndisplayableResponse replaces a reply that cannot be turned into text.
const UndisplayableResponse = "Unable to display response"

// replyFields are tried in order on structured replies.
var replyFields = []string{"response", "text", "content"}

// DisplayText normalizes a reply to the string shown to the user.
func (r Response) DisplayText() string {
	switch r.Kind {
	case ResponseText:
		return r.Text
	case ResponseStructured:
		return structuredText(r.Structured)
	default:
		return ""
	}
}

func structuredText(raw json.RawMessage) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, field := range replyFields {
			v, ok := obj[field]
			if !ok || isBlank(v) {
				continue
			}
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				return s
			}
			return compact(v)
		}
	}
	return compact(raw)
}

// isBlank reports whether a field value counts as missing: null, false,
// an empty string or a numeric zero.
func isBlank(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	switch {
	case len(v) == 0:
		return true
	case bytes.Equal(v, []byte("null")), bytes.Equal(v, []byte("false")), bytes.Equal(v, []byte(`""`)):
		return true
	case v[0] == '-' || (v[0] >= '0' && v[0] <= '9'):
		var n float64
		return json.Unmarshal(v, &n) == nil && n == 0
	}
	return false
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return UndisplayableResponse
	}
	return buf.String()
}
