package observability

import (
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

// Pipeline stage names recorded in the rolling latency window.
const (
	StageCapture    = "capture"
	StageTranscribe = "transcribe"
	StageFirstToken = "first_token"
	StageReply      = "reply"
	StageSynthesis  = "synthesis"
	StageFirstAudio = "first_audio"
)

// stageTargets are the p95 budgets, in milliseconds, that keep a spoken
// reply under a few seconds. Stages without a budget are reported only.
var stageTargets = map[string]float64{
	StageTranscribe: 800,
	StageFirstToken: 600,
	StageSynthesis:  1200,
	StageFirstAudio: 2500,
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Indicators  []Indicator  `json:"indicators,omitempty"`
}

// StageWindow keeps the most recent latencies of each pipeline stage plus
// running counts of notable events (dropped or failed utterances, empty
// captures).
type StageWindow struct {
	mu       sync.RWMutex
	capacity int
	rings    map[string]*latencyRing
	counts   map[string]int
}

func NewStageWindow(capacity int) *StageWindow {
	if capacity <= 0 {
		capacity = 256
	}
	w := &StageWindow{capacity: capacity}
	w.clear()
	return w
}

func (w *StageWindow) clear() {
	w.rings = make(map[string]*latencyRing)
	w.counts = make(map[string]int)
}

func (w *StageWindow) Observe(stage string, d time.Duration) {
	w.ObserveMS(stage, float64(d)/float64(time.Millisecond))
}

func (w *StageWindow) ObserveMS(stage string, ms float64) {
	if w == nil || stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.rings[stage]
	if r == nil {
		r = &latencyRing{samples: make([]float64, 0, w.capacity)}
		w.rings[stage] = r
	}
	r.add(ms)
}

// ObserveIndicator bumps the named counter. Blank names are ignored.
func (w *StageWindow) ObserveIndicator(name string) {
	if w == nil {
		return
	}
	if name = strings.TrimSpace(name); name == "" {
		return
	}
	w.mu.Lock()
	w.counts[name]++
	w.mu.Unlock()
}

// Snapshot summarizes every stage seen since the last Reset, sorted by
// stage name.
func (w *StageWindow) Snapshot() StageSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.capacity,
		Stages:      make([]StageStats, 0, len(w.rings)),
	}
	for _, stage := range slices.Sorted(maps.Keys(w.rings)) {
		if stats, ok := w.rings[stage].summarize(stage); ok {
			snap.Stages = append(snap.Stages, stats)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(w.counts)) {
		snap.Indicators = append(snap.Indicators, Indicator{Name: name, Count: w.counts[name]})
	}
	return snap
}

// Reset forgets all samples and counters.
func (w *StageWindow) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.clear()
	w.mu.Unlock()
}

// latencyRing grows to its capacity, then overwrites the oldest sample.
type latencyRing struct {
	samples []float64
	pos     int
	last    float64
}

func (r *latencyRing) add(ms float64) {
	r.last = ms
	if len(r.samples) < cap(r.samples) {
		r.samples = append(r.samples, ms)
		return
	}
	r.samples[r.pos] = ms
	r.pos = (r.pos + 1) % len(r.samples)
}

func (r *latencyRing) summarize(stage string) (StageStats, bool) {
	n := len(r.samples)
	if n == 0 {
		return StageStats{}, false
	}
	sorted := slices.Clone(r.samples)
	slices.Sort(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return StageStats{
		Stage:       stage,
		Samples:     n,
		LastMS:      roundMS(r.last),
		AvgMS:       roundMS(sum / float64(n)),
		P50MS:       roundMS(nearestRank(sorted, 50)),
		P95MS:       roundMS(nearestRank(sorted, 95)),
		P99MS:       roundMS(nearestRank(sorted, 99)),
		TargetP95MS: stageTargets[stage],
	}, true
}

// nearestRank returns the smallest sample with at least pct percent of the
// window at or below it.
func nearestRank(sorted []float64, pct float64) float64 {
	rank := int(math.Ceil(pct / 100 * float64(len(sorted))))
	rank = min(max(rank, 1), len(sorted))
	return sorted[rank-1]
}

func roundMS(v float64) float64 {
	return math.Round(v*100) / 100
}
