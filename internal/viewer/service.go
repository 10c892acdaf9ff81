// Package viewer runs one viewer interaction at a time against a loaded
// dataset and the annotation repository: load the store, compute the view,
// and save the store back when the interaction changed it.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/RoaringBitmap/roaring"
	"github.com/rs/zerolog"

	"github.com/antoniostano/prefview/internal/annotations"
	"github.com/antoniostano/prefview/internal/conversation"
	"github.com/antoniostano/prefview/internal/dataset"
	"github.com/antoniostano/prefview/internal/observability"
	"github.com/antoniostano/prefview/internal/textdiff"
)

var (
	ErrRecordNotFound = dataset.ErrRecordNotFound
	ErrSourceNotFound = errors.New("source not found")
)

const previewRunes = 80

type Options struct {
	DefaultUsername string
	ContextLines    int
	Metrics         *observability.Metrics
	Logger          zerolog.Logger
}

type Service struct {
	mu sync.Mutex

	data         *dataset.Dataset
	repo         annotations.Repository
	diff         *textdiff.Highlighter
	metrics      *observability.Metrics
	logger       zerolog.Logger
	defaultUser  string
	contextLines int
}

type RecordSummary struct {
	ID         int    `json:"id"`
	Source     string `json:"source"`
	Preview    string `json:"preview"`
	Viewed     bool   `json:"viewed"`
	HasComment bool   `json:"has_comment"`
}

type RecordView struct {
	ID            int    `json:"id"`
	Source        string `json:"source"`
	Prompt        string `json:"prompt"`
	Chosen        string `json:"chosen"`
	Rejected      string `json:"rejected"`
	ChosenValid   bool   `json:"chosen_valid"`
	RejectedValid bool   `json:"rejected_valid"`
	User          string `json:"user"`
	Viewed        bool   `json:"viewed"`
	Comment       string `json:"comment"`
}

type DiffView struct {
	ID           int             `json:"id"`
	Chosen       []textdiff.Line `json:"chosen"`
	Rejected     []textdiff.Line `json:"rejected"`
	ChosenHTML   string          `json:"chosen_html"`
	RejectedHTML string          `json:"rejected_html"`
	Stats        textdiff.Stats  `json:"stats"`
}

type Comment struct {
	User string `json:"user"`
	Text string `json:"text"`
}

// New builds a Service. A nil highlighter falls back to uncached diffs.
func New(data *dataset.Dataset, repo annotations.Repository, diff *textdiff.Highlighter, opts Options) *Service {
	user := strings.TrimSpace(opts.DefaultUsername)
	if user == "" {
		user = annotations.DefaultUsername
	}
	contextLines := opts.ContextLines
	if contextLines < 0 {
		contextLines = 0
	}
	return &Service{
		data:         data,
		repo:         repo,
		diff:         diff,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		defaultUser:  user,
		contextLines: contextLines,
	}
}

func (s *Service) Sources() []dataset.SourceCount {
	return s.data.Sources()
}

func (s *Service) RecordCount() int {
	return s.data.Len()
}

func (s *Service) StoreMode() string {
	return s.repo.Mode()
}

// Records lists summaries for source, or for every record when source is
// empty.
func (s *Service) Records(ctx context.Context, source, user string) (out []RecordSummary, err error) {
	defer s.track("records", time.Now(), &err)
	ids, err := s.idsFor(source)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	store, err := s.load(ctx, "records")
	if err != nil {
		return nil, err
	}

	user = s.username(user)
	out = make([]RecordSummary, 0, len(ids))
	for _, id := range ids {
		rec, err := s.data.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, summarize(rec, store, user))
	}
	return out, nil
}

func (s *Service) View(ctx context.Context, id int, user string) (view RecordView, err error) {
	defer s.track("view", time.Now(), &err)
	rec, err := s.data.Get(id)
	if err != nil {
		return RecordView{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	store, err := s.load(ctx, "view")
	if err != nil {
		return RecordView{}, err
	}

	start := time.Now()
	chosen := conversation.Format(rec.Chosen)
	rejected := conversation.Format(rec.Rejected)
	user = s.username(user)
	view = RecordView{
		ID:            rec.ID,
		Source:        rec.Source,
		Prompt:        rec.Prompt,
		Chosen:        chosen,
		Rejected:      rejected,
		ChosenValid:   !conversation.IsInvalid(chosen),
		RejectedValid: !conversation.IsInvalid(rejected),
		User:          user,
		Viewed:        store.IsViewed(user, rec.ID),
		Comment:       store.Comment(user, rec.ID),
	}
	s.metrics.ObserveStage("view", "compute", time.Since(start))
	if !view.ChosenValid || !view.RejectedValid {
		s.metrics.ObserveIndicator("invalid_conversation")
	}
	return view, nil
}

// Diff annotates the formatted chosen and rejected responses line by line.
func (s *Service) Diff(_ context.Context, id int) (view DiffView, err error) {
	defer s.track("diff", time.Now(), &err)
	chosen, rejected, err := s.formatted(id)
	if err != nil {
		return DiffView{}, err
	}

	start := time.Now()
	ann := s.diff.Annotate(chosen, rejected)
	chosenHTML, rejectedHTML := ann.Render(textdiff.HTMLMarker{})
	s.metrics.ObserveStage("diff", "compute", time.Since(start))
	return DiffView{
		ID:           id,
		Chosen:       ann.Chosen,
		Rejected:     ann.Rejected,
		ChosenHTML:   chosenHTML,
		RejectedHTML: rejectedHTML,
		Stats:        ann.Stats(),
	}, nil
}

func (s *Service) UnifiedDiff(_ context.Context, id int) (out string, err error) {
	defer s.track("unified_diff", time.Now(), &err)
	chosen, rejected, err := s.formatted(id)
	if err != nil {
		return "", err
	}
	return textdiff.Unified(chosen, rejected, s.contextLines)
}

// MarkViewed records that user has seen the record. Marking twice is a
// no-op and does not rewrite the store.
func (s *Service) MarkViewed(ctx context.Context, id int, user string) (err error) {
	defer s.track("mark_viewed", time.Now(), &err)
	if _, err := s.data.Get(id); err != nil {
		return err
	}
	user = s.username(user)
	return s.update(ctx, "mark_viewed", func(store annotations.Store) (annotations.Store, error) {
		return store.MarkViewed(user, id)
	})
}

// SetComment replaces the user's comment. Blank text removes it.
func (s *Service) SetComment(ctx context.Context, id int, user, text string) (err error) {
	defer s.track("set_comment", time.Now(), &err)
	if _, err := s.data.Get(id); err != nil {
		return err
	}
	user = s.username(user)
	return s.update(ctx, "set_comment", func(store annotations.Store) (annotations.Store, error) {
		return store.SetComment(user, id, text)
	})
}

// Comments returns every user's comment on the record, ordered by user.
func (s *Service) Comments(ctx context.Context, id int) (out []Comment, err error) {
	defer s.track("comments", time.Now(), &err)
	if _, err := s.data.Get(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	store, err := s.load(ctx, "comments")
	if err != nil {
		return nil, err
	}

	byUser := store.CommentsFor(id)
	out = make([]Comment, 0, len(byUser))
	for user, text := range byUser {
		out = append(out, Comment{User: user, Text: text})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out, nil
}

// NextUnviewed returns the lowest-id record in source (or in the whole
// dataset when source is empty) that user has not viewed yet.
func (s *Service) NextUnviewed(ctx context.Context, source, user string) (rec RecordSummary, found bool, err error) {
	defer s.track("next_unviewed", time.Now(), &err)
	var candidates *roaring.Bitmap
	if source == "" {
		candidates = roaring.New()
		candidates.AddRange(0, uint64(s.data.Len()))
	} else {
		if !s.data.HasSource(source) {
			return RecordSummary{}, false, fmt.Errorf("%w: %q", ErrSourceNotFound, source)
		}
		candidates = s.data.Bitmap(source)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	store, err := s.load(ctx, "next_unviewed")
	if err != nil {
		return RecordSummary{}, false, err
	}

	user = s.username(user)
	candidates.AndNot(store.Viewed(user))
	if candidates.IsEmpty() {
		return RecordSummary{}, false, nil
	}
	next, err := s.data.Get(int(candidates.Minimum()))
	if err != nil {
		return RecordSummary{}, false, err
	}
	return summarize(next, store, user), true, nil
}

func (s *Service) update(ctx context.Context, op string, mutate func(annotations.Store) (annotations.Store, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.load(ctx, op)
	if err != nil {
		return err
	}
	next, err := mutate(store)
	if err != nil {
		return err
	}
	if next.Equal(store) {
		return nil
	}
	return s.save(ctx, op, next)
}

func (s *Service) load(ctx context.Context, op string) (annotations.Store, error) {
	start := time.Now()
	store, err := s.repo.Load(ctx)
	s.metrics.ObserveStage(op, "load", time.Since(start))
	if err != nil {
		var corrupt *annotations.CorruptStoreError
		kind := "load"
		if errors.As(err, &corrupt) {
			kind = "corrupt"
			s.metrics.ObserveIndicator("corrupt_store")
		}
		if s.metrics != nil {
			s.metrics.StoreErrors.WithLabelValues(kind).Inc()
		}
		s.logger.Error().Err(err).Str("backend", s.repo.Mode()).Msg("annotation store load failed")
		return nil, err
	}
	return store, nil
}

func (s *Service) save(ctx context.Context, op string, store annotations.Store) error {
	start := time.Now()
	err := s.repo.Save(ctx, store)
	s.metrics.ObserveStage(op, "save", time.Since(start))
	result := "ok"
	if err != nil {
		result = "error"
		s.logger.Error().Err(err).Str("backend", s.repo.Mode()).Msg("annotation store save failed")
	}
	if s.metrics != nil {
		s.metrics.AnnotationWrites.WithLabelValues(s.repo.Mode(), result).Inc()
	}
	if err != nil {
		return fmt.Errorf("save annotations: %w", err)
	}
	return nil
}

func (s *Service) formatted(id int) (string, string, error) {
	rec, err := s.data.Get(id)
	if err != nil {
		return "", "", err
	}
	return conversation.Format(rec.Chosen), conversation.Format(rec.Rejected), nil
}

func (s *Service) idsFor(source string) ([]int, error) {
	if source == "" {
		ids := make([]int, s.data.Len())
		for i := range ids {
			ids[i] = i
		}
		return ids, nil
	}
	if !s.data.HasSource(source) {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotFound, source)
	}
	return s.data.IDsBySource(source), nil
}

func (s *Service) username(user string) string {
	if strings.TrimSpace(user) == "" {
		return s.defaultUser
	}
	return annotations.NormalizeUsername(user)
}

func (s *Service) track(op string, start time.Time, errp *error) {
	result := "ok"
	switch {
	case *errp == nil:
	case errors.Is(*errp, ErrRecordNotFound), errors.Is(*errp, ErrSourceNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	s.metrics.ObserveInteraction(op, result, time.Since(start))
	s.logger.Debug().Str("op", op).Str("result", result).Dur("elapsed", time.Since(start)).Msg("interaction")
}

func summarize(rec dataset.Record, store annotations.Store, user string) RecordSummary {
	return RecordSummary{
		ID:         rec.ID,
		Source:     rec.Source,
		Preview:    preview(rec.Prompt),
		Viewed:     store.IsViewed(user, rec.ID),
		HasComment: store.Comment(user, rec.ID) != "",
	}
}

// preview collapses whitespace and truncates to previewRunes.
func preview(prompt string) string {
	text := strings.Join(strings.FieldsFunc(prompt, unicode.IsSpace), " ")
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes-1]) + "…"
}
