package conversation

import (
	"strings"
	"testing"
	"unicode"
)

func TestFormatUserAssistant(t *testing.T) {
	raw := []byte(`[{"role":"user","content":"Hi"},{"role":"assistant","content":"Hello"}]`)
	got := Format(raw)
	want := "User:\nHi\n\nAssistant:\nHello"
	if got != want {
		t.Fatalf("Format() = %q, want %q", got, want)
	}
}

func TestFormatAppliesDefaults(t *testing.T) {
	raw := []byte(`[{"content":"orphan"},{"role":"system"}]`)
	got := Format(raw)
	want := "Unknown:\norphan\n\nSystem:\n" + MissingContent
	if got != want {
		t.Fatalf("Format() = %q, want %q", got, want)
	}
}

func TestFormatTrimsTrailingWhitespace(t *testing.T) {
	raw := []byte(`[{"role":"user","content":"a"},{"role":"assistant","content":"b  \n\n"}]`)
	got := Format(raw)
	if strings.TrimRightFunc(got, unicode.IsSpace) != got {
		t.Fatalf("Format() has trailing whitespace: %q", got)
	}
	if got != "User:\na\n\nAssistant:\nb" {
		t.Fatalf("Format() = %q", got)
	}
}

func TestFormatMalformedInput(t *testing.T) {
	cases := map[string]string{
		"object":       `{"role":"user"}`,
		"string turns": `["hello"]`,
		"null turn":    `[null]`,
		"numeric role": `[{"role":3,"content":"x"}]`,
		"null role":    `[{"role":null,"content":"x"}]`,
		"broken json":  `[{"role":"user"`,
		"empty":        ``,
	}
	for name, raw := range cases {
		got := Format([]byte(raw))
		if !IsInvalid(got) {
			t.Fatalf("%s: Format() = %q, want invalid format message", name, got)
		}
	}
}

func TestFormatNonStringContent(t *testing.T) {
	raw := []byte(`[{"role":"tool","content":{"a": 1}}]`)
	if got := Format(raw); got != "Tool:\n{\"a\":1}" {
		t.Fatalf("Format() = %q", got)
	}
}

func TestFormatEmptyConversation(t *testing.T) {
	if got := Format([]byte(`[]`)); got != "" {
		t.Fatalf("Format([]) = %q, want empty", got)
	}
}

func TestRenderSeparatorCount(t *testing.T) {
	turns := []Turn{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
	}
	got := Render(turns)
	if n := strings.Count(got, "\n\n"); n != len(turns)-1 {
		t.Fatalf("separator count = %d, want %d", n, len(turns)-1)
	}
}

func TestDisplayRole(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"user", "User"},
		{"ASSISTANT", "ASSISTANT"},
		{"", ""},
		{"élève", "Élève"},
	}
	for _, tc := range cases {
		if got := DisplayRole(tc.in); got != tc.want {
			t.Fatalf("DisplayRole(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
