package annotations

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring"
)

// DefaultUsername identifies annotations made without a user name.
const DefaultUsername = "anonymous"

var ErrInvalidRecordID = errors.New("record id must be between 0 and 4294967295")

// UserAnnotations holds one user's viewed records and comments.
type UserAnnotations struct {
	Viewed   *roaring.Bitmap
	Comments map[int]string
}

// Store maps user names to their annotations. Operations return an updated
// copy and never modify the receiver.
type Store map[string]UserAnnotations

// NormalizeUsername trims name and falls back to DefaultUsername.
func NormalizeUsername(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultUsername
	}
	return name
}

// MarkViewed adds recordID to the user's viewed set.
func (s Store) MarkViewed(username string, recordID int) (Store, error) {
	id, err := checkRecordID(recordID)
	if err != nil {
		return nil, err
	}
	username = NormalizeUsername(username)
	next := s.clone()
	u := next[username].clone()
	u.Viewed.Add(id)
	next[username] = u
	return next, nil
}

// SetComment replaces the user's comment on recordID. Blank text clears it.
func (s Store) SetComment(username string, recordID int, text string) (Store, error) {
	if _, err := checkRecordID(recordID); err != nil {
		return nil, err
	}
	username = NormalizeUsername(username)
	next := s.clone()
	u := next[username].clone()
	if strings.TrimSpace(text) == "" {
		delete(u.Comments, recordID)
	} else {
		u.Comments[recordID] = text
	}
	next[username] = u
	return next, nil
}

// CommentsFor returns every user's comment on recordID.
func (s Store) CommentsFor(recordID int) map[string]string {
	out := make(map[string]string)
	for user, u := range s {
		if c, ok := u.Comments[recordID]; ok {
			out[user] = c
		}
	}
	return out
}

func (s Store) Comment(username string, recordID int) string {
	return s[NormalizeUsername(username)].Comments[recordID]
}

func (s Store) IsViewed(username string, recordID int) bool {
	id, err := checkRecordID(recordID)
	if err != nil {
		return false
	}
	v := s[NormalizeUsername(username)].Viewed
	return v != nil && v.Contains(id)
}

// Viewed returns a copy of the user's viewed set.
func (s Store) Viewed(username string) *roaring.Bitmap {
	v := s[NormalizeUsername(username)].Viewed
	if v == nil {
		return roaring.New()
	}
	return v.Clone()
}

// Users returns the number of users with an entry.
func (s Store) Users() int { return len(s) }

func (s Store) Equal(other Store) bool {
	if len(s) != len(other) {
		return false
	}
	for user, u := range s {
		o, ok := other[user]
		if !ok || !u.equal(o) {
			return false
		}
	}
	return true
}

func (s Store) clone() Store {
	next := make(Store, len(s)+1)
	for user, u := range s {
		next[user] = u
	}
	return next
}

func (u UserAnnotations) clone() UserAnnotations {
	c := UserAnnotations{Viewed: roaring.New(), Comments: make(map[int]string, len(u.Comments))}
	if u.Viewed != nil {
		c.Viewed = u.Viewed.Clone()
	}
	for id, text := range u.Comments {
		c.Comments[id] = text
	}
	return c
}

func (u UserAnnotations) equal(o UserAnnotations) bool {
	if cardinality(u.Viewed) != cardinality(o.Viewed) {
		return false
	}
	if cardinality(u.Viewed) > 0 && !u.Viewed.Equals(o.Viewed) {
		return false
	}
	if len(u.Comments) != len(o.Comments) {
		return false
	}
	for id, text := range u.Comments {
		if c, ok := o.Comments[id]; !ok || c != text {
			return false
		}
	}
	return true
}

func cardinality(b *roaring.Bitmap) uint64 {
	if b == nil {
		return 0
	}
	return b.GetCardinality()
}

type userAnnotationsJSON struct {
	Viewed   []uint32       `json:"viewed"`
	Comments map[int]string `json:"comments"`
}

func (u UserAnnotations) MarshalJSON() ([]byte, error) {
	w := userAnnotationsJSON{Viewed: []uint32{}, Comments: map[int]string{}}
	if u.Viewed != nil && !u.Viewed.IsEmpty() {
		w.Viewed = u.Viewed.ToArray()
	}
	for id, text := range u.Comments {
		w.Comments[id] = text
	}
	return json.Marshal(w)
}

func (u *UserAnnotations) UnmarshalJSON(data []byte) error {
	var w struct {
		Viewed   []uint32          `json:"viewed"`
		Comments map[string]string `json:"comments"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	comments := make(map[int]string, len(w.Comments))
	for key, text := range w.Comments {
		id, err := parseRecordKey(key)
		if err != nil {
			return err
		}
		comments[id] = text
	}
	u.Viewed = roaring.BitmapOf(w.Viewed...)
	u.Comments = comments
	return nil
}

// parseRecordKey accepts only the canonical decimal form of a record id, so
// a loaded key is written back unchanged.
func parseRecordKey(key string) (int, error) {
	n, err := strconv.ParseUint(key, 10, 32)
	if err != nil || strconv.FormatUint(n, 10) != key {
		return 0, fmt.Errorf("comment key %q: %w", key, ErrInvalidRecordID)
	}
	return int(n), nil
}

func checkRecordID(recordID int) (uint32, error) {
	if recordID < 0 || uint64(recordID) > math.MaxUint32 {
		return 0, ErrInvalidRecordID
	}
	return uint32(recordID), nil
}
