package httpapi

import (
	"net/http"
	"strings"

	"github.com/ent0n29/talkback/internal/observability"
)

type perfStage struct {
	observability.StageStats
	OverTarget bool `json:"over_target"`
}

type perfResponse struct {
	GeneratedAt string                    `json:"generated_at"`
	WindowSize  int                       `json:"window_size"`
	Stages      []perfStage               `json:"stages"`
	Indicators  []observability.Indicator `json:"indicators,omitempty"`
}

// handlePerfLatency serves the rolling stage window. ?stage=a,b limits the
// result to the named stages.
func (s *Server) handlePerfLatency(w http.ResponseWriter, r *http.Request) {
	resp := perfResponse{Stages: []perfStage{}}
	if s.metrics == nil || s.metrics.Stages == nil {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	snap := s.metrics.Stages.Snapshot()
	resp.GeneratedAt = snap.GeneratedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	resp.WindowSize = snap.WindowSize
	resp.Indicators = snap.Indicators

	var want map[string]bool
	if raw := strings.TrimSpace(r.URL.Query().Get("stage")); raw != "" {
		want = make(map[string]bool)
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				want[name] = true
			}
		}
	}
	for _, st := range snap.Stages {
		if want != nil && !want[st.Stage] {
			continue
		}
		resp.Stages = append(resp.Stages, perfStage{
			StageStats: st,
			OverTarget: st.TargetP95MS > 0 && st.P95MS > st.TargetP95MS,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePerfReset(w http.ResponseWriter, _ *http.Request) {
	if s.metrics != nil {
		s.metrics.Stages.Reset()
	}
	w.WriteHeader(http.StatusNoContent)
}
