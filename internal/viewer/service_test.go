package viewer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/prefview/internal/annotations"
	"github.com/antoniostano/prefview/internal/dataset"
	"github.com/antoniostano/prefview/internal/observability"
	"github.com/antoniostano/prefview/internal/textdiff"
)

func testRecords() []dataset.Record {
	return []dataset.Record{
		{
			Source:   "math",
			Prompt:   "What is\n2+2?",
			Chosen:   json.RawMessage(`[{"role":"user","content":"What is 2+2?"},{"role":"assistant","content":"4"}]`),
			Rejected: json.RawMessage(`[{"role":"user","content":"What is 2+2?"},{"role":"assistant","content":"5"}]`),
		},
		{
			Source:   "chat",
			Prompt:   "hello",
			Chosen:   json.RawMessage(`[{"role":"user","content":"hello"}]`),
			Rejected: json.RawMessage(`"oops"`),
		},
		{
			Source:   "math",
			Prompt:   strings.Repeat("long ", 40),
			Chosen:   json.RawMessage(`[]`),
			Rejected: json.RawMessage(`[]`),
		},
	}
}

func newTestService(t *testing.T, repo annotations.Repository) (*Service, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics("viewer_test", prometheus.NewRegistry())
	diff, err := textdiff.NewHighlighter(16, metrics.ObserveDiffCache)
	require.NoError(t, err)
	svc := New(dataset.New(testRecords()), repo, diff, Options{
		ContextLines: 1,
		Metrics:      metrics,
		Logger:       zerolog.Nop(),
	})
	return svc, metrics
}

func TestViewFormatsBothResponses(t *testing.T) {
	svc, _ := newTestService(t, annotations.NewMemoryRepository())
	ctx := context.Background()

	view, err := svc.View(ctx, 0, "")
	require.NoError(t, err)
	assert.Equal(t, "User:\nWhat is 2+2?\n\nAssistant:\n4", view.Chosen)
	assert.Equal(t, "User:\nWhat is 2+2?\n\nAssistant:\n5", view.Rejected)
	assert.True(t, view.ChosenValid)
	assert.Equal(t, annotations.DefaultUsername, view.User)
	assert.False(t, view.Viewed)

	bad, err := svc.View(ctx, 1, "alice")
	require.NoError(t, err)
	assert.False(t, bad.RejectedValid)
	assert.True(t, strings.HasPrefix(bad.Rejected, "Invalid response format: "))

	_, err = svc.View(ctx, 99, "alice")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestMarkViewedAndComment(t *testing.T) {
	repo := annotations.NewMemoryRepository()
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	require.NoError(t, svc.MarkViewed(ctx, 0, "alice"))
	require.NoError(t, svc.MarkViewed(ctx, 0, "alice"))
	require.NoError(t, svc.SetComment(ctx, 0, "alice", "chosen is correct"))
	require.NoError(t, svc.SetComment(ctx, 0, "bob", "agree"))

	view, err := svc.View(ctx, 0, "alice")
	require.NoError(t, err)
	assert.True(t, view.Viewed)
	assert.Equal(t, "chosen is correct", view.Comment)

	comments, err := svc.Comments(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []Comment{{User: "alice", Text: "chosen is correct"}, {User: "bob", Text: "agree"}}, comments)

	require.NoError(t, svc.SetComment(ctx, 0, "bob", "   "))
	comments, err = svc.Comments(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, comments, 1)

	store, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.True(t, store.IsViewed("alice", 0))
	assert.False(t, store.IsViewed("bob", 0))

	assert.ErrorIs(t, svc.MarkViewed(ctx, 7, "alice"), ErrRecordNotFound)
	assert.ErrorIs(t, svc.SetComment(ctx, -1, "alice", "x"), ErrRecordNotFound)
}

func TestStageTimingsPerOp(t *testing.T) {
	svc, metrics := newTestService(t, annotations.NewMemoryRepository())
	ctx := context.Background()

	require.NoError(t, svc.MarkViewed(ctx, 0, "alice"))
	require.NoError(t, svc.MarkViewed(ctx, 0, "alice"))

	op, ok := metrics.SnapshotLatency().Op("mark_viewed")
	require.True(t, ok)
	load, _ := op.Stage("load")
	save, _ := op.Stage("save")
	assert.Equal(t, 2, load.Samples)
	assert.Equal(t, 1, save.Samples, "an unchanged store is not saved again")
}

func TestRecordsAndNextUnviewed(t *testing.T) {
	svc, _ := newTestService(t, annotations.NewMemoryRepository())
	ctx := context.Background()

	all, err := svc.Records(ctx, "", "alice")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "What is 2+2?", all[0].Preview)
	assert.Len(t, []rune(all[2].Preview), previewRunes)

	math, err := svc.Records(ctx, "math", "alice")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, []int{math[0].ID, math[1].ID})

	_, err = svc.Records(ctx, "poetry", "alice")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	next, ok, err := svc.NextUnviewed(ctx, "math", "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, next.ID)

	require.NoError(t, svc.MarkViewed(ctx, 0, "alice"))
	next, ok, err = svc.NextUnviewed(ctx, "math", "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, next.ID)

	require.NoError(t, svc.MarkViewed(ctx, 2, "alice"))
	_, ok, err = svc.NextUnviewed(ctx, "math", "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	next, ok, err = svc.NextUnviewed(ctx, "", "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, next.ID)

	math, err = svc.Records(ctx, "math", "alice")
	require.NoError(t, err)
	assert.True(t, math[0].Viewed && math[1].Viewed)
}

func TestDiffUsesCache(t *testing.T) {
	svc, metrics := newTestService(t, annotations.NewMemoryRepository())
	ctx := context.Background()

	d, err := svc.Diff(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, textdiff.Stats{Common: 4, Removed: 1, Added: 1}, d.Stats)
	assert.Contains(t, d.ChosenHTML, `<span class="diff-removed">4</span>`)
	assert.Contains(t, d.RejectedHTML, `<span class="diff-added">5</span>`)

	_, err = svc.Diff(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, svc.diff.Len())

	diffOp, ok := metrics.SnapshotLatency().Op("diff")
	require.True(t, ok)
	total, ok := diffOp.Stage(observability.StageTotal)
	require.True(t, ok)
	assert.Equal(t, 2, total.Samples)
	compute, ok := diffOp.Stage("compute")
	require.True(t, ok)
	assert.Equal(t, 2, compute.Samples)

	unified, err := svc.UnifiedDiff(ctx, 0)
	require.NoError(t, err)
	assert.Contains(t, unified, "-4")
	assert.Contains(t, unified, "+5")
}

func TestCorruptStoreSurfacesError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotations.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	repo, err := annotations.NewFileRepository(path)
	require.NoError(t, err)
	svc, _ := newTestService(t, repo)

	_, err = svc.View(context.Background(), 0, "alice")
	var corrupt *annotations.CorruptStoreError
	require.ErrorAs(t, err, &corrupt)

	err = svc.MarkViewed(context.Background(), 0, "alice")
	require.ErrorAs(t, err, &corrupt)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
}
