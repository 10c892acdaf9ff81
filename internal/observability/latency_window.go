package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// StageTotal is the stage name under which a whole interaction is recorded.
const StageTotal = "total"

// opBudgetP95MS is the p95 latency an interaction should stay under.
var opBudgetP95MS = map[string]float64{
	"view":          100,
	"diff":          100,
	"records":       150,
	"mark_viewed":   100,
	"set_comment":   100,
	"next_unviewed": 100,
}

type StageLatency struct {
	Stage   string  `json:"stage"`
	Samples int     `json:"samples"`
	LastMS  float64 `json:"last_ms"`
	AvgMS   float64 `json:"avg_ms"`
	P50MS   float64 `json:"p50_ms"`
	P95MS   float64 `json:"p95_ms"`
	MaxMS   float64 `json:"max_ms"`
}

// OpLatency groups the stage latencies of one interaction kind.
type OpLatency struct {
	Op          string         `json:"op"`
	Stages      []StageLatency `json:"stages"`
	BudgetP95MS float64        `json:"budget_p95_ms,omitempty"`
	OverBudget  bool           `json:"over_budget"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time   `json:"generated_at"`
	WindowSize  int         `json:"window_size"`
	Ops         []OpLatency `json:"ops"`
	Indicators  []Indicator `json:"indicators,omitempty"`
}

// Op returns the entry for op, if any samples were recorded for it.
func (s LatencySnapshot) Op(op string) (OpLatency, bool) {
	for _, o := range s.Ops {
		if o.Op == op {
			return o, true
		}
	}
	return OpLatency{}, false
}

// Stage returns the entry for stage within the op.
func (o OpLatency) Stage(stage string) (StageLatency, bool) {
	for _, st := range o.Stages {
		if st.Stage == stage {
			return st, true
		}
	}
	return StageLatency{}, false
}

type seriesKey struct {
	op    string
	stage string
}

// latencyWindow keeps the newest samples of every (op, stage) series,
// oldest first.
type latencyWindow struct {
	mu     sync.Mutex
	limit  int
	series map[seriesKey][]float64
	counts map[string]int
}

func newLatencyWindow(limit int) *latencyWindow {
	if limit <= 0 {
		limit = 256
	}
	return &latencyWindow{
		limit:  limit,
		series: make(map[seriesKey][]float64),
		counts: make(map[string]int),
	}
}

func (w *latencyWindow) Observe(op, stage string, d time.Duration) {
	op, stage = strings.TrimSpace(op), strings.TrimSpace(stage)
	if op == "" || stage == "" || d < 0 {
		return
	}
	ms := float64(d.Microseconds()) / 1000

	w.mu.Lock()
	defer w.mu.Unlock()
	key := seriesKey{op: op, stage: stage}
	samples := append(w.series[key], ms)
	if len(samples) > w.limit {
		samples = samples[len(samples)-w.limit:]
	}
	w.series[key] = samples
}

func (w *latencyWindow) Count(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counts[name]++
}

func (w *latencyWindow) Snapshot() LatencySnapshot {
	w.mu.Lock()
	byOp := make(map[string][]StageLatency)
	for key, samples := range w.series {
		if len(samples) == 0 {
			continue
		}
		byOp[key.op] = append(byOp[key.op], summarize(key.stage, samples))
	}
	indicators := make([]Indicator, 0, len(w.counts))
	for name, n := range w.counts {
		indicators = append(indicators, Indicator{Name: name, Count: n})
	}
	w.mu.Unlock()

	ops := make([]OpLatency, 0, len(byOp))
	for op, stages := range byOp {
		sort.Slice(stages, func(i, j int) bool { return stages[i].Stage < stages[j].Stage })
		entry := OpLatency{Op: op, Stages: stages, BudgetP95MS: opBudgetP95MS[op]}
		if total, ok := entry.Stage(StageTotal); ok && entry.BudgetP95MS > 0 {
			entry.OverBudget = total.P95MS > entry.BudgetP95MS
		}
		ops = append(ops, entry)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Op < ops[j].Op })
	sort.Slice(indicators, func(i, j int) bool { return indicators[i].Name < indicators[j].Name })

	return LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.limit,
		Ops:         ops,
		Indicators:  indicators,
	}
}

func summarize(stage string, samples []float64) StageLatency {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return StageLatency{
		Stage:   stage,
		Samples: len(sorted),
		LastMS:  roundMS(samples[len(samples)-1]),
		AvgMS:   roundMS(sum / float64(len(sorted))),
		P50MS:   roundMS(nearestRank(sorted, 50)),
		P95MS:   roundMS(nearestRank(sorted, 95)),
		MaxMS:   roundMS(sorted[len(sorted)-1]),
	}
}

// nearestRank returns the smallest sample with at least pct percent of the
// samples at or below it.
func nearestRank(sorted []float64, pct float64) float64 {
	rank := int(math.Ceil(pct / 100 * float64(len(sorted))))
	return sorted[min(max(rank, 1), len(sorted))-1]
}

func roundMS(v float64) float64 {
	return math.Round(v*100) / 100
}
