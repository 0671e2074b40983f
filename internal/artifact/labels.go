package artifact

import (
	"bytes"
	"encoding/json"
	"strings"
)

// EncodeLabels renders a label list in the tag form `["a","b"]`.
func EncodeLabels(labels []string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(labels); err != nil {
		return "[]"
	}
	return strings.TrimSpace(buf.String())
}

// DecodeLabels parses a label tag. Hand-edited tags are not always valid
// JSON, so a bracketed, comma separated list of bare or quoted words is
// accepted too.
func DecodeLabels(raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out
	}
	body := strings.TrimSpace(raw)
	body = strings.TrimPrefix(body, "[")
	body = strings.TrimSuffix(body, "]")
	for _, part := range strings.Split(body, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
