package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ent0n29/talkback/internal/config"
	"github.com/ent0n29/talkback/internal/observability"
	"github.com/ent0n29/talkback/internal/protocol"
	"github.com/ent0n29/talkback/internal/session"
	"github.com/ent0n29/talkback/internal/voice"
)

// Pipeline is the read side of the speech queue.
type Pipeline interface {
	State() voice.State
	Pending() int
}

type Server struct {
	cfg      config.Config
	tracker  *session.Tracker
	pipeline Pipeline
	metrics  *observability.Metrics
	hub      *Hub
	upgrader websocket.Upgrader
}

func New(cfg config.Config, tracker *session.Tracker, pipeline Pipeline, metrics *observability.Metrics, hub *Hub) *Server {
	if hub == nil {
		hub = NewHub(metrics, 0)
	}
	return &Server{
		cfg:      cfg,
		tracker:  tracker,
		pipeline: pipeline,
		metrics:  metrics,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only watch the feed from the same origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// Hub returns the event fan-out used by /v1/events.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Delete("/v1/perf/latency", s.handlePerfReset)
	r.Get("/v1/events", s.handleEvents)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.tracker == nil || s.tracker.Snapshot().Status != session.StatusActive {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "stopped"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		respondError(w, http.StatusNotFound, "metrics_disabled", "metrics are not configured")
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

type statusResponse struct {
	Session   *session.Session  `json:"session,omitempty"`
	Pipeline  pipelineStatus    `json:"pipeline"`
	Providers map[string]string `json:"providers"`
	Listeners int               `json:"event_subscribers"`
}

type pipelineStatus struct {
	State   string `json:"state"`
	Pending int    `json:"pending"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Pipeline: pipelineStatus{State: string(voice.StateIdle)},
		Providers: map[string]string{
			"llm":       s.cfg.LLMProvider,
			"llm_model": s.cfg.LLMModel,
			"stt":       s.cfg.STTProvider,
			"tts":       s.cfg.TTSProvider,
			"playback":  s.cfg.PlaybackProvider,
		},
		Listeners: s.hub.Subscribers(),
	}
	if s.tracker != nil {
		snap := s.tracker.Snapshot()
		resp.Session = &snap
	}
	if s.pipeline != nil {
		resp.Pipeline = pipelineStatus{State: string(s.pipeline.State()), Pending: s.pipeline.Pending()}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	sessionID := ""
	if s.tracker != nil {
		sessionID = s.tracker.ID()
	}

	// Replies to client messages go through the same writer goroutine.
	replies := make(chan any, 8)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Closing unblocks the read loop when the writer gives up first.
		defer conn.Close()
		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()
		for {
			var msg any
			select {
			case evt, ok := <-sub.events:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
					return
				}
				msg = evt
			case reply, ok := <-replies:
				if !ok {
					return
				}
				msg = reply
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
				continue
			}
			payload, err := sonic.Marshal(msg)
			if err != nil {
				log.Warn().Err(err).Msg("event encode failed")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug().Err(err).Msg("event feed write failed")
				return
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		var reply any
		parsed, err := protocol.ParseClientMessage(data)
		switch {
		case err != nil:
			reply = protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Detail:    err.Error(),
			}
		case parsed.(protocol.ClientControl).Action == "ping":
			reply = protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sessionID, Code: "pong"}
		default:
			reply = protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "unsupported_action",
				Source:    "gateway",
				Detail:    "the event feed is read-only",
			}
		}
		select {
		case replies <- reply:
		default:
		}
	}

	close(replies)
	unsubscribe()
	<-writerDone
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
