package conversation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultRole is used for turns without a role field.
	DefaultRole = "unknown"
	// MissingContent is shown for turns without a content field.
	MissingContent = "No content field found"

	invalidFormatPrefix = "Invalid response format: "
)

var ErrNotConversation = errors.New("conversation is not a list of turns")

// Turn is one message of a dialogue.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Format decodes a JSON conversation and renders it for display. Malformed
// input never fails: the returned text carries an "Invalid response format"
// message instead.
func Format(raw []byte) string {
	turns, err := Parse(raw)
	if err != nil {
		return invalidFormatPrefix + err.Error()
	}
	return Render(turns)
}

// IsInvalid reports whether text is the placeholder produced by Format for
// malformed input.
func IsInvalid(text string) bool {
	return strings.HasPrefix(text, invalidFormatPrefix)
}

// Parse decodes a JSON array of turn objects, applying the field defaults.
func Parse(raw []byte) ([]Turn, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotConversation
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}

	turns := make([]Turn, 0, len(items))
	for i, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			return nil, fmt.Errorf("turn %d is not an object", i)
		}

		t := Turn{Role: DefaultRole, Content: MissingContent}
		if v, ok := fields["role"]; ok {
			if err := json.Unmarshal(v, &t.Role); err != nil || isNull(v) {
				return nil, fmt.Errorf("turn %d: role must be a string", i)
			}
		}
		if v, ok := fields["content"]; ok {
			t.Content = contentText(v)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Render joins turns as "<Role>:\n<content>" blocks separated by a blank
// line, with trailing whitespace removed.
func Render(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(DisplayRole(t.Role))
		b.WriteString(":\n")
		b.WriteString(t.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimRightFunc(b.String(), unicode.IsSpace)
}

// DisplayRole upper-cases the first character of role.
func DisplayRole(role string) string {
	r, size := utf8.DecodeRuneInString(role)
	if r == utf8.RuneError {
		return role
	}
	return string(unicode.ToUpper(r)) + role[size:]
}

func contentText(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil && !isNull(v) {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, v); err != nil {
		return string(v)
	}
	return compact.String()
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
