// Package web exposes the suggestion pipeline over HTTP: a chi REST API for
// ingestion, configuration, custom mappings and preferences, plus a
// websocket [Hub] that streams suggestions and display commands to UI
// clients.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/emotive/internal/health"
	"github.com/MrWong99/emotive/internal/intensity"
	"github.com/MrWong99/emotive/internal/keyword"
	"github.com/MrWong99/emotive/internal/observe"
	"github.com/MrWong99/emotive/internal/predict"
	"github.com/MrWong99/emotive/internal/preference"
	"github.com/MrWong99/emotive/internal/suggest"
	"github.com/MrWong99/emotive/pkg/types"
)

const maxBodyBytes = 1 << 20

// Server routes HTTP requests to the pipeline components.
type Server struct {
	orch      *suggest.Orchestrator
	keywords  *keyword.Matcher
	prefs     *preference.Tracker
	predictor *predict.Predictor
	hub       *Hub
	health    *health.Handler
	metrics   *observe.Metrics
	mcp       http.Handler
	mcpPath   string

	router chi.Router
}

// Option configures a [Server].
type Option func(*Server)

// WithPreferences serves the preference endpoints from t.
func WithPreferences(t *preference.Tracker) Option {
	return func(s *Server) { s.prefs = t }
}

// WithPredictor serves predictions in the analyze endpoint.
func WithPredictor(p *predict.Predictor) Option {
	return func(s *Server) { s.predictor = p }
}

// WithHub mounts the websocket hub at /ws and accepts pipeline input from
// its clients.
func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithHealth mounts the liveness and readiness probes.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics records request metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMCP mounts an MCP handler at path.
func WithMCP(path string, h http.Handler) Option {
	return func(s *Server) { s.mcpPath, s.mcp = path, h }
}

// New builds the router.
func New(orch *suggest.Orchestrator, keywords *keyword.Matcher, opts ...Option) *Server {
	s := &Server{orch: orch, keywords: keywords}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.predictor == nil {
		s.predictor = predict.New()
	}
	s.router = s.routes()
	if s.hub != nil {
		s.hub.OnMessage(s.handleInbound)
	}
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if s.health != nil {
		s.health.Register(r)
	}
	r.Handle("/metrics", observe.MetricsHandler())

	r.Group(func(r chi.Router) {
		r.Use(observe.Middleware(s.metrics))

		if s.hub != nil {
			r.Handle("/ws", s.hub)
		}
		if s.mcp != nil && s.mcpPath != "" {
			r.Handle(s.mcpPath, s.mcp)
			r.Handle(s.mcpPath+"/*", s.mcp)
		}

		r.Route("/api", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Post("/enable", s.handleEnable)
			r.Post("/disable", s.handleDisable)
			r.Patch("/config", s.handleConfig)

			r.Post("/transcripts", s.handleTranscript)
			r.Post("/prosody", s.handleProsody)
			r.Post("/analyze", s.handleAnalyze)

			r.Route("/suggestions", func(r chi.Router) {
				r.Get("/", s.handleSuggestions)
				r.Delete("/", s.handleClearSuggestions)
				r.Post("/select", s.handleSelect)
			})
			r.Post("/media/{id}/select", s.handleSelectMedia)

			r.Route("/mappings", func(r chi.Router) {
				r.Get("/", s.handleListMappings)
				r.Delete("/", s.handleClearMappings)
				r.Get("/{keyword}", s.handleGetMapping)
				r.Put("/{keyword}", s.handlePutMapping)
				r.Delete("/{keyword}", s.handleDeleteMapping)
			})

			r.Route("/preferences", func(r chi.Router) {
				r.Use(s.requirePreferences)
				r.Get("/", s.handlePreferences)
				r.Delete("/", s.handleResetPreferences)
				r.Get("/export", s.handleExportPreferences)
				r.Post("/import", s.handleImportPreferences)
			})
		})
	})
	return r
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

type statusResponse struct {
	State               string `json:"state"`
	Enabled             bool   `json:"enabled"`
	DisplayMode         string `json:"display_mode"`
	AutoDisplayDuration int64  `json:"auto_display_duration_ms"`
	PendingDisplays     int    `json:"pending_displays"`
	Clients             int    `json:"clients"`
}

func (s *Server) status() statusResponse {
	cfg := s.orch.Config()
	st := statusResponse{
		State:               s.orch.State().String(),
		Enabled:             s.orch.Enabled(),
		DisplayMode:         string(cfg.DisplayMode),
		AutoDisplayDuration: cfg.AutoDisplayDuration.Milliseconds(),
		PendingDisplays:     s.orch.PendingDisplays(),
	}
	if s.hub != nil {
		st.Clients = s.hub.Len()
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Enable(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Disable(); err != nil {
		observe.Logger(r.Context()).Warn("web: disable", "err", err)
	}
	writeJSON(w, http.StatusOK, s.status())
}

type configRequest struct {
	DisplayMode         *string `json:"display_mode"`
	AutoDisplayDuration *int64  `json:"auto_display_duration_ms"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DisplayMode != nil {
		mode, err := suggest.ParseDisplayMode(*req.DisplayMode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.orch.SetDisplayMode(mode); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.AutoDisplayDuration != nil {
		s.orch.SetAutoDisplayDuration(time.Duration(*req.AutoDisplayDuration) * time.Millisecond)
	}
	writeJSON(w, http.StatusOK, s.status())
}

// ── Ingestion ────────────────────────────────────────────────────────────────

type suggestionsResponse struct {
	Suggestions []types.Suggestion `json:"suggestions"`
	Media       []types.MediaItem  `json:"media"`
	Predictive  []types.Suggestion `json:"predictive,omitempty"`
}

func (s *Server) suggestions() suggestionsResponse {
	return suggestionsResponse{
		Suggestions: nonNil(s.orch.CurrentSuggestions()),
		Media:       nonNil(s.orch.CurrentMedia()),
		Predictive:  s.orch.PredictiveSuggestions(),
	}
}

// ingest validates ev and hands it to the orchestrator. Final transcripts
// are processed synchronously.
func (s *Server) ingest(ctx context.Context, ev types.TranscriptEvent) error {
	if !s.orch.Enabled() {
		return errDisabled
	}
	if ev.Text == "" {
		return errors.New("text must not be empty")
	}
	switch ev.Speaker {
	case "":
		ev.Speaker = types.SpeakerSelf
	case types.SpeakerSelf, types.SpeakerOther:
	default:
		return fmt.Errorf("unknown speaker %q", ev.Speaker)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.orch.HandleEvent(ctx, ev)
	return nil
}

var errDisabled = errors.New("suggestions are disabled")

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	var ev types.TranscriptEvent
	if !decodeJSON(w, r, &ev) {
		return
	}
	if err := s.ingest(r.Context(), ev); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errDisabled) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	if ev.IsPartial || ev.Speaker == types.SpeakerOther {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, s.suggestions())
}

func (s *Server) handleProsody(w http.ResponseWriter, r *http.Request) {
	var f types.ProsodyFeatures
	if !decodeJSON(w, r, &f) {
		return
	}
	writeJSON(w, http.StatusOK, s.orch.SubmitProsody(f))
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Intensity   intensity.Result     `json:"intensity"`
	Predictions []predict.Prediction `json:"predictions"`
	Likely      bool                 `json:"reaction_likely"`
}

// handleAnalyze scores text without touching cooldowns or pipeline state.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{
		Intensity:   intensity.Detect(req.Text),
		Predictions: nonNil(s.predictor.Predict(req.Text)),
		Likely:      s.predictor.IsReactionLikely(req.Text),
	})
}

// ── Suggestions ──────────────────────────────────────────────────────────────

func (s *Server) handleSuggestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.suggestions())
}

func (s *Server) handleClearSuggestions(w http.ResponseWriter, _ *http.Request) {
	s.orch.ClearSuggestions()
	w.WriteHeader(http.StatusNoContent)
}

type selectRequest struct {
	Suggestion types.Suggestion `json:"suggestion"`
	Display    bool             `json:"display"`
}

type selectResponse struct {
	Displayed bool `json:"displayed"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Suggestion.Emoji == "" && req.Suggestion.Text == "" {
		writeError(w, http.StatusBadRequest, errors.New("suggestion needs an emoji or text"))
		return
	}
	resp, err := s.selectSuggestion(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) selectSuggestion(ctx context.Context, req selectRequest) (selectResponse, error) {
	if err := s.orch.LogReactionSelection(ctx, req.Suggestion, preference.SourceEmoji); err != nil {
		observe.Logger(ctx).Warn("web: log selection", "err", err)
	}
	if !req.Display {
		return selectResponse{}, nil
	}
	if err := s.orch.DisplaySuggestion(ctx, req.Suggestion); err != nil {
		if errors.Is(err, suggest.ErrNoDisplay) || errors.Is(err, ErrNoClients) {
			return selectResponse{}, nil
		}
		return selectResponse{}, err
	}
	return selectResponse{Displayed: true}, nil
}

func (s *Server) handleSelectMedia(w http.ResponseWriter, r *http.Request) {
	resp, err := s.selectMedia(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errUnknownMedia) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

var errUnknownMedia = errors.New("unknown media item")

func (s *Server) selectMedia(ctx context.Context, id string) (selectResponse, error) {
	item, ok := s.orch.MediaSuggestionByID(id)
	if !ok {
		return selectResponse{}, fmt.Errorf("%w %q", errUnknownMedia, id)
	}
	if err := s.orch.LogMediaSelection(ctx, item); err != nil {
		observe.Logger(ctx).Warn("web: log media selection", "err", err)
	}
	if err := s.orch.DisplayMedia(ctx, id); err != nil {
		if errors.Is(err, suggest.ErrNoDisplay) || errors.Is(err, ErrNoClients) {
			return selectResponse{}, nil
		}
		return selectResponse{}, err
	}
	return selectResponse{Displayed: true}, nil
}

// ── Custom mappings ──────────────────────────────────────────────────────────

func (s *Server) handleListMappings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.keywords.CustomMappings())
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	mp, ok := s.keywords.Lookup(chi.URLParam(r, "keyword"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no mapping for keyword"))
		return
	}
	writeJSON(w, http.StatusOK, mp)
}

func (s *Server) handlePutMapping(w http.ResponseWriter, r *http.Request) {
	var mp keyword.Mapping
	if !decodeJSON(w, r, &mp) {
		return
	}
	if mp.Emoji == "" && mp.Text == "" && mp.SearchQuery == "" {
		writeError(w, http.StatusBadRequest, errors.New("mapping needs an emoji, text or search query"))
		return
	}
	if err := s.keywords.AddCustomMapping(r.Context(), chi.URLParam(r, "keyword"), mp); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, keyword.ErrEmptyKeyword) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, mp)
}

func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	if err := s.keywords.RemoveMapping(r.Context(), chi.URLParam(r, "keyword")); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearMappings(w http.ResponseWriter, r *http.Request) {
	if err := s.keywords.ClearCustomMappings(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Preferences ──────────────────────────────────────────────────────────────

func (s *Server) requirePreferences(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.prefs == nil {
			writeError(w, http.StatusNotFound, errors.New("preference learning is disabled"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type preferencesResponse struct {
	Stats          preference.Stats   `json:"stats"`
	FavoriteEmojis []preference.Count `json:"favorite_emojis"`
	Categories     []preference.Count `json:"favorite_categories"`
	MediaStyles    []preference.Count `json:"media_styles"`
}

func (s *Server) handlePreferences(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, preferencesResponse{
		Stats:          s.prefs.Stats(),
		FavoriteEmojis: nonNil(s.prefs.FavoriteEmojis(0)),
		Categories:     nonNil(s.prefs.FavoriteCategories(0)),
		MediaStyles:    nonNil(s.prefs.PreferredMediaStyles(0)),
	})
}

func (s *Server) handleResetPreferences(w http.ResponseWriter, r *http.Request) {
	if err := s.prefs.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportPreferences(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Disposition", `attachment; filename="reaction-preferences.json"`)
	writeJSON(w, http.StatusOK, s.prefs.Export())
}

func (s *Server) handleImportPreferences(w http.ResponseWriter, r *http.Request) {
	var doc preference.Document
	if !decodeJSON(w, r, &doc) {
		return
	}
	if err := s.prefs.Import(r.Context(), doc); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, preference.ErrUnsupportedVersion) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, s.prefs.Stats())
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeJSON decodes the request body into v and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
