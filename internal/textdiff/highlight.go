package textdiff

import (
	"fmt"
	"html"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Kind classifies a line of one side of an annotated pair.
type Kind int

const (
	KindCommon Kind = iota
	// KindRemoved marks a line present only on the chosen side.
	KindRemoved
	// KindAdded marks a line present only on the rejected side.
	KindAdded
)

func (k Kind) String() string {
	switch k {
	case KindCommon:
		return "common"
	case KindRemoved:
		return "removed"
	case KindAdded:
		return "added"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "common":
		*k = KindCommon
	case "removed":
		*k = KindRemoved
	case "added":
		*k = KindAdded
	default:
		return fmt.Errorf("unknown line kind %q", text)
	}
	return nil
}

// Line is one classified line.
type Line struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// Stats counts lines per classification.
type Stats struct {
	Common  int `json:"common"`
	Removed int `json:"removed"`
	Added   int `json:"added"`
}

// Annotation is the classified line view of a chosen/rejected pair. Each
// side keeps its lines in original order.
type Annotation struct {
	Chosen   []Line `json:"chosen"`
	Rejected []Line `json:"rejected"`
}

// Annotate classifies every line of chosen and rejected.
func Annotate(chosen, rejected string) Annotation {
	ops := Align(SplitLines(chosen), SplitLines(rejected))
	var out Annotation
	for _, op := range ops {
		switch op.Kind {
		case OpCommon:
			out.Chosen = append(out.Chosen, Line{Kind: KindCommon, Text: op.Text})
			out.Rejected = append(out.Rejected, Line{Kind: KindCommon, Text: op.Text})
		case OpOnlyA:
			out.Chosen = append(out.Chosen, Line{Kind: KindRemoved, Text: op.Text})
		case OpOnlyB:
			out.Rejected = append(out.Rejected, Line{Kind: KindAdded, Text: op.Text})
		}
	}
	return out
}

func (a Annotation) Stats() Stats {
	var s Stats
	for _, l := range a.Chosen {
		switch l.Kind {
		case KindCommon:
			s.Common++
		case KindRemoved:
			s.Removed++
		}
	}
	for _, l := range a.Rejected {
		if l.Kind == KindAdded {
			s.Added++
		}
	}
	return s
}

// Render renders both sides with m, one output line per input line.
func (a Annotation) Render(m Marker) (chosen, rejected string) {
	return renderSide(a.Chosen, m), renderSide(a.Rejected, m)
}

func renderSide(lines []Line, m Marker) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		switch l.Kind {
		case KindRemoved:
			out = append(out, m.Removed(l.Text))
		case KindAdded:
			out = append(out, m.Added(l.Text))
		default:
			out = append(out, m.Common(l.Text))
		}
	}
	return strings.Join(out, "\n")
}

// Highlight returns chosen and rejected with the lines unique to each side
// wrapped by m.
func Highlight(chosen, rejected string, m Marker) (string, string) {
	return Annotate(chosen, rejected).Render(m)
}

// Marker renders a single line according to its classification.
type Marker interface {
	Common(line string) string
	Removed(line string) string
	Added(line string) string
}

// HTMLMarker escapes every line and wraps changed lines in spans styled by
// the diff-removed and diff-added classes.
type HTMLMarker struct{}

func (HTMLMarker) Common(line string) string { return html.EscapeString(line) }

func (HTMLMarker) Removed(line string) string {
	return `<span class="diff-removed">` + html.EscapeString(line) + `</span>`
}

func (HTMLMarker) Added(line string) string {
	return `<span class="diff-added">` + html.EscapeString(line) + `</span>`
}

// BracketMarker is a plain-text marker: [removed]...[/removed] and
// [added]...[/added].
type BracketMarker struct{}

func (BracketMarker) Common(line string) string  { return line }
func (BracketMarker) Removed(line string) string { return "[removed]" + line + "[/removed]" }
func (BracketMarker) Added(line string) string   { return "[added]" + line + "[/added]" }

// Unified renders the pair as a unified diff with the given number of
// context lines.
func Unified(chosen, rejected string, context int) (string, error) {
	if context < 0 {
		context = 0
	}
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(chosen),
		B:        difflib.SplitLines(rejected),
		FromFile: "chosen",
		ToFile:   "rejected",
		Context:  context,
	})
	if err != nil {
		return "", fmt.Errorf("unified diff: %w", err)
	}
	return out, nil
}
