package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := NewStageWindow(8)
	w.Observe(StageFirstAudio, 500*time.Millisecond)
	w.Observe(StageFirstAudio, 700*time.Millisecond)
	w.Observe(StageFirstAudio, 900*time.Millisecond)
	w.ObserveIndicator("utterance_dropped")
	w.ObserveIndicator("utterance_dropped")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageFirstAudio {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageFirstAudio)
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 2500 {
		t.Fatalf("TargetP95MS = %.2f, want 2500", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want one indicator with count 2", snap.Indicators)
	}
}

func TestStageWindowWrapsAround(t *testing.T) {
	w := NewStageWindow(2)
	w.ObserveMS(StageReply, 1)
	w.ObserveMS(StageReply, 2)
	w.ObserveMS(StageReply, 3)

	s := w.Snapshot().Stages[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", s.Samples)
	}
	if s.AvgMS != 2.5 {
		t.Fatalf("AvgMS = %.2f, want 2.5", s.AvgMS)
	}
}

func TestStageWindowPercentilesAndTargets(t *testing.T) {
	w := NewStageWindow(100)
	for i := 100; i >= 1; i-- {
		w.ObserveMS(StageTranscribe, float64(i))
	}
	w.ObserveMS(StageCapture, 42)

	snap := w.Snapshot()
	if len(snap.Stages) != 2 || snap.Stages[0].Stage != StageCapture || snap.Stages[1].Stage != StageTranscribe {
		t.Fatalf("Stages = %+v, want capture then transcribe", snap.Stages)
	}
	if got := snap.Stages[0].TargetP95MS; got != 0 {
		t.Fatalf("capture TargetP95MS = %.2f, want 0", got)
	}
	s := snap.Stages[1]
	if s.P50MS != 50 || s.P95MS != 95 || s.P99MS != 99 {
		t.Fatalf("percentiles = %.0f/%.0f/%.0f, want 50/95/99", s.P50MS, s.P95MS, s.P99MS)
	}
	if s.LastMS != 1 {
		t.Fatalf("LastMS = %.2f, want 1", s.LastMS)
	}
	if s.TargetP95MS != 800 {
		t.Fatalf("TargetP95MS = %.2f, want 800", s.TargetP95MS)
	}

	w.ObserveIndicator("  ")
	w.ObserveIndicator("capture_empty")
	w.Reset()
	snap = w.Snapshot()
	if len(snap.Stages) != 0 || len(snap.Indicators) != 0 {
		t.Fatalf("snapshot after Reset = %+v, want empty", snap)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncTurn("ok")
	m.SetBusy(true)
	m.ObserveSynthesis(time.Second)
	m.ObserveStage(StageCapture, time.Second)
}

func TestMetricsHandlerExposesInstruments(t *testing.T) {
	m := NewMetrics("talkback_test")
	m.IncUtterance("played")
	m.SetBusy(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `talkback_test_utterances_total{outcome="played"} 1`) {
		t.Fatalf("metrics body missing utterance counter:\n%s", body)
	}
	if !strings.Contains(body, "talkback_test_pipeline_busy 1") {
		t.Fatalf("metrics body missing busy gauge:\n%s", body)
	}
}
