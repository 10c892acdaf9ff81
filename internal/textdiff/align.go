// Package textdiff aligns two texts line by line and renders the differences
// for side-by-side display.
package textdiff

import "strings"

// OpKind tags one step of a line alignment.
type OpKind int

const (
	OpCommon OpKind = iota
	OpOnlyA
	OpOnlyB
)

// Op is one aligned line. A and B are the line indexes on each side, or -1
// when the line exists on one side only.
type Op struct {
	Kind OpKind
	A    int
	B    int
	Text string
}

// SplitLines splits text into lines. Empty text has no lines and a single
// trailing newline does not start a new line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// Align computes a longest-common-subsequence alignment of a and b.
//
// When several alignments share the maximal length, the walk skips the
// lexicographically smaller of the two mismatched lines. The rule only looks
// at line values, so Align(b, a) is always the mirror image of Align(a, b).
func Align(a, b []string) []Op {
	ops := make([]Op, 0, len(a)+len(b))

	// Matching a common prefix or suffix is always part of some LCS.
	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		ops = append(ops, Op{Kind: OpCommon, A: prefix, B: prefix, Text: a[prefix]})
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix && a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	midA := a[prefix : len(a)-suffix]
	midB := b[prefix : len(b)-suffix]
	ops = alignMiddle(ops, midA, midB, prefix)

	for k := suffix; k > 0; k-- {
		i, j := len(a)-k, len(b)-k
		ops = append(ops, Op{Kind: OpCommon, A: i, B: j, Text: a[i]})
	}
	return ops
}

func alignMiddle(ops []Op, a, b []string, offset int) []Op {
	n, m := len(a), len(b)
	w := m + 1

	// lcs[i*w+j] holds the LCS length of a[i:] and b[j:].
	lcs := make([]int, (n+1)*w)
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i*w+j] = lcs[(i+1)*w+j+1] + 1
				continue
			}
			lcs[i*w+j] = max(lcs[(i+1)*w+j], lcs[i*w+j+1])
		}
	}

	i, j := 0, 0
	for i < n && j < m {
		skipA, skipB := lcs[(i+1)*w+j], lcs[i*w+j+1]
		switch {
		case a[i] == b[j]:
			ops = append(ops, Op{Kind: OpCommon, A: offset + i, B: offset + j, Text: a[i]})
			i++
			j++
		case skipA > skipB, skipA == skipB && a[i] < b[j]:
			ops = append(ops, Op{Kind: OpOnlyA, A: offset + i, B: -1, Text: a[i]})
			i++
		default:
			ops = append(ops, Op{Kind: OpOnlyB, A: -1, B: offset + j, Text: b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, Op{Kind: OpOnlyA, A: offset + i, B: -1, Text: a[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, Op{Kind: OpOnlyB, A: -1, B: offset + j, Text: b[j]})
	}
	return ops
}
