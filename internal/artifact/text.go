package artifact

import (
	"encoding/base64"
	"regexp"
	"strings"
)

// inlinePrefix is "msch" in standard base64.
const inlinePrefix = "bXNjaA"

// fenced matches an optional ``` code fence (with an optional language
// hint) around the payload.
var fenced = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// colorTag matches inline colour markup such as [red] or [#ff0000].
var colorTag = regexp.MustCompile(`\[[^\[\]]*\]`)

// StripColors removes colour markup from a name.
func StripColors(s string) string {
	return colorTag.ReplaceAllString(s, "")
}

// ParseText extracts an inline base64 artifact from message text. Text
// that does not carry an artifact yields ErrNoArtifact.
func ParseText(c Codec, text string) (*Artifact, error) {
	payload := strings.TrimSpace(text)
	if m := fenced.FindStringSubmatch(payload); m != nil {
		payload = m[1]
	}
	payload = strings.Join(strings.Fields(payload), "")
	if !strings.HasPrefix(payload, inlinePrefix) {
		return nil, ErrNoArtifact
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, decodeErr(Truncated, "invalid base64", err)
		}
	}
	return c.Decode(raw)
}

// FormatText renders an artifact in the inline base64 form.
func FormatText(c Codec, a *Artifact) (string, error) {
	raw, err := c.Encode(a)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
