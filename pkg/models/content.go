package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Content is a message body: either a plain text value or a structured
// sequence of heterogeneous elements. The store persists whatever shape it
// receives and returns it byte-for-byte unchanged; it never inspects,
// alters, or escapes the payload. Safe rendering is the consumer's job.
type Content struct {
	raw json.RawMessage
}

// TextContent wraps a plain text value.
func TextContent(s string) Content {
	return Content{raw: encodeRaw(s)}
}

// StructuredContent wraps an ordered sequence of opaque elements.
func StructuredContent(parts []json.RawMessage) Content {
	return Content{raw: encodeRaw(parts)}
}

// encodeRaw serializes without HTML escaping; plain json.Marshal would
// rewrite < > & as \u escapes and break the byte-exact content contract.
func encodeRaw(v any) json.RawMessage {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// IsZero reports whether no content was set.
func (c Content) IsZero() bool { return len(c.raw) == 0 }

// IsText reports whether the content is a plain text value.
func (c Content) IsText() bool { return len(c.raw) > 0 && c.raw[0] == '"' }

// Text returns the plain text value, if the content holds one.
func (c Content) Text() (string, bool) {
	if !c.IsText() {
		return "", false
	}
	var s string
	if err := json.Unmarshal(c.raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Parts returns the structured element sequence, if the content holds one.
func (c Content) Parts() ([]json.RawMessage, bool) {
	if len(c.raw) == 0 || c.raw[0] != '[' {
		return nil, false
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(c.raw, &parts); err != nil {
		return nil, false
	}
	return parts, true
}

func (c Content) MarshalJSON() ([]byte, error) {
	if len(c.raw) == 0 {
		return []byte("null"), nil
	}
	return c.raw, nil
}

func (c *Content) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		c.raw = nil
		return nil
	}
	switch b[0] {
	case '"', '[':
		c.raw = append(json.RawMessage(nil), b...)
		return nil
	}
	return fmt.Errorf("content must be a string or a list, got %q", firstByte(b))
}

func firstByte(b []byte) string {
	for _, ch := range b {
		if ch == ' ' || ch == '\n' || ch == '\r' || ch == '\t' {
			continue
		}
		return string(ch)
	}
	return ""
}
