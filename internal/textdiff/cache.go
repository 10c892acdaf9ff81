package textdiff

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Highlighter memoizes Annotate per (chosen, rejected) pair. A nil cache
// (size <= 0) disables memoization. Safe for concurrent use.
type Highlighter struct {
	cache    *lru.Cache[[sha256.Size]byte, Annotation]
	onLookup func(hit bool)
}

// NewHighlighter builds a Highlighter holding up to size annotations.
// onLookup, when set, is told about every cache hit or miss.
func NewHighlighter(size int, onLookup func(hit bool)) (*Highlighter, error) {
	h := &Highlighter{onLookup: onLookup}
	if size <= 0 {
		return h, nil
	}
	cache, err := lru.New[[sha256.Size]byte, Annotation](size)
	if err != nil {
		return nil, fmt.Errorf("diff cache: %w", err)
	}
	h.cache = cache
	return h, nil
}

func (h *Highlighter) Annotate(chosen, rejected string) Annotation {
	if h == nil || h.cache == nil {
		return Annotate(chosen, rejected)
	}
	key := pairKey(chosen, rejected)
	if a, ok := h.cache.Get(key); ok {
		h.report(true)
		return a
	}
	h.report(false)
	a := Annotate(chosen, rejected)
	h.cache.Add(key, a)
	return a
}

func (h *Highlighter) Highlight(chosen, rejected string, m Marker) (string, string) {
	return h.Annotate(chosen, rejected).Render(m)
}

// Len reports the number of cached annotations.
func (h *Highlighter) Len() int {
	if h == nil || h.cache == nil {
		return 0
	}
	return h.cache.Len()
}

func (h *Highlighter) report(hit bool) {
	if h.onLookup != nil {
		h.onLookup(hit)
	}
}

// pairKey length-prefixes chosen so ("ab","c") and ("a","bc") differ.
func pairKey(chosen, rejected string) [sha256.Size]byte {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(chosen)))
	d := sha256.New()
	d.Write(n[:])
	d.Write([]byte(chosen))
	d.Write([]byte(rejected))
	var key [sha256.Size]byte
	copy(key[:], d.Sum(nil))
	return key
}
