// Package dataset holds the immutable table of preference-pair records.
package dataset

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/RoaringBitmap/roaring"
)

var ErrRecordNotFound = errors.New("record not found")

// Record is one row of a preference-pair dataset. ID is the row index.
type Record struct {
	ID       int             `json:"id"`
	Source   string          `json:"source"`
	Prompt   string          `json:"prompt"`
	Chosen   json.RawMessage `json:"chosen"`
	Rejected json.RawMessage `json:"rejected"`
}

// SourceCount is a source category and the number of records tagged with it.
type SourceCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Dataset indexes records by source. It is never modified after New.
type Dataset struct {
	records  []Record
	bySource map[string][]int
	bitmaps  map[string]*roaring.Bitmap
	sources  []SourceCount
}

// New indexes records, assigning each its row index as ID.
func New(records []Record) *Dataset {
	d := &Dataset{
		records:  records,
		bySource: make(map[string][]int),
		bitmaps:  make(map[string]*roaring.Bitmap),
	}
	for i := range d.records {
		d.records[i].ID = i
		src := d.records[i].Source
		d.bySource[src] = append(d.bySource[src], i)
		bm, ok := d.bitmaps[src]
		if !ok {
			bm = roaring.New()
			d.bitmaps[src] = bm
		}
		bm.Add(uint32(i))
	}
	for name, ids := range d.bySource {
		d.sources = append(d.sources, SourceCount{Name: name, Count: len(ids)})
	}
	sort.Slice(d.sources, func(i, j int) bool { return d.sources[i].Name < d.sources[j].Name })
	return d
}

func (d *Dataset) Len() int { return len(d.records) }

func (d *Dataset) Get(id int) (Record, error) {
	if id < 0 || id >= len(d.records) {
		return Record{}, ErrRecordNotFound
	}
	return d.records[id], nil
}

// Sources lists source categories sorted by name.
func (d *Dataset) Sources() []SourceCount {
	out := make([]SourceCount, len(d.sources))
	copy(out, d.sources)
	return out
}

func (d *Dataset) HasSource(source string) bool {
	_, ok := d.bySource[source]
	return ok
}

// IDsBySource returns record ids of source in row order.
func (d *Dataset) IDsBySource(source string) []int {
	ids := d.bySource[source]
	out := make([]int, len(ids))
	copy(out, ids)
	return out
}

// Bitmap returns the record ids of source as a set.
func (d *Dataset) Bitmap(source string) *roaring.Bitmap {
	bm, ok := d.bitmaps[source]
	if !ok {
		return roaring.New()
	}
	return bm.Clone()
}
