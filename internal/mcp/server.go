// Package mcp exposes the reaction pipeline as Model Context Protocol tools
// so assistants and chat bots can ask for reactions to a line of text.
//
// The tools are stateless with respect to the live pipeline: they never arm
// keyword cooldowns, touch the current suggestions or emit updates. Custom
// mappings and the learned preference ranking are shared with it.
//
// The server is reachable over streamable HTTP via [Server.Handler] or over
// any SDK transport via [Server.Run], for example stdio.
package mcp

import (
	"context"
	"errors"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/emotive/internal/keyword"
	"github.com/MrWong99/emotive/internal/observe"
	"github.com/MrWong99/emotive/internal/predict"
	"github.com/MrWong99/emotive/internal/preference"
	"github.com/MrWong99/emotive/internal/semantic"
	"github.com/MrWong99/emotive/pkg/provider/media"
)

// Tool names.
const (
	ToolSuggestReactions = "suggest_reactions"
	ToolPredictReactions = "predict_reactions"
	ToolDetectIntensity  = "detect_intensity"
	ToolSearchMedia      = "search_media"
	ToolAddMapping       = "add_keyword_mapping"
	ToolPreferenceStats  = "preference_stats"
)

const (
	defaultSemanticTimeout = 2 * time.Second
	defaultMediaLimit      = 5
	maxMediaLimit          = 25
)

// Server is an MCP tool server over the reaction pipeline.
type Server struct {
	keywords  *keyword.Matcher
	semantic  *semantic.Matcher
	predictor *predict.Predictor
	prefs     *preference.Tracker
	media     media.Provider
	metrics   *observe.Metrics

	semanticTimeout  time.Duration
	semanticPriority float64
	version          string

	srv *mcpsdk.Server
}

// Option configures a [Server].
type Option func(*Server)

// WithSemantic adds embedding matches to suggest_reactions.
func WithSemantic(m *semantic.Matcher) Option {
	return func(s *Server) { s.semantic = m }
}

// WithSemanticTimeout bounds the semantic stage of a tool call.
func WithSemanticTimeout(d time.Duration) Option {
	return func(s *Server) { s.semanticTimeout = d }
}

// WithSemanticPriority sets the similarity above which a semantic match
// leads the merged suggestions.
func WithSemanticPriority(p float64) Option {
	return func(s *Server) { s.semanticPriority = p }
}

// WithPredictor replaces the default predictor.
func WithPredictor(p *predict.Predictor) Option {
	return func(s *Server) { s.predictor = p }
}

// WithPreferences re-ranks suggestions by the learned profile and enables
// preference_stats.
func WithPreferences(t *preference.Tracker) Option {
	return func(s *Server) { s.prefs = t }
}

// WithMediaProvider enables search_media.
func WithMediaProvider(p media.Provider) Option {
	return func(s *Server) { s.media = p }
}

// WithMetrics records tool calls on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the implementation version announced to clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New registers the tools available with the given options.
func New(keywords *keyword.Matcher, opts ...Option) *Server {
	s := &Server{
		keywords:         keywords,
		semanticTimeout:  defaultSemanticTimeout,
		semanticPriority: 0.65,
		version:          "dev",
	}
	for _, o := range opts {
		o(s)
	}
	if s.keywords == nil {
		s.keywords = keyword.New()
	}
	if s.predictor == nil {
		s.predictor = predict.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	s.srv = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "emotive", Title: "Emotive reactions", Version: s.version}, nil)
	s.register()
	return s
}

func (s *Server) register() {
	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        ToolSuggestReactions,
		Description: "Suggest emoji and text reactions for something the user said. Combines keyword rules, semantic similarity when available, intensity and learned preferences.",
	}, instrument(s, ToolSuggestReactions, s.suggestReactions))

	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        ToolPredictReactions,
		Description: "Predict which reactions are likely to be wanted in reply to something another person said.",
	}, instrument(s, ToolPredictReactions, s.predictReactions))

	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        ToolDetectIntensity,
		Description: "Score the emotional intensity of a text from 0 to 1 and name the rules that contributed.",
	}, instrument(s, ToolDetectIntensity, s.detectIntensity))

	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        ToolAddMapping,
		Description: "Map a spoken keyword or phrase to a custom emoji, text reaction or media query.",
	}, instrument(s, ToolAddMapping, s.addMapping))

	if s.media != nil {
		mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
			Name:        ToolSearchMedia,
			Description: "Search reaction GIFs and stickers.",
		}, instrument(s, ToolSearchMedia, s.searchMedia))
	}
	if s.prefs != nil {
		mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
			Name:        ToolPreferenceStats,
			Description: "Summarise which reactions the user picks most often.",
		}, instrument(s, ToolPreferenceStats, s.preferenceStats))
	}
}

// instrument records latency and outcome of every call to h.
func instrument[In, Out any](s *Server, name string, h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, Out, error) {
		start := time.Now()
		res, out, err := h(ctx, req, in)
		status := "ok"
		if err != nil {
			status = "error"
			observe.Logger(ctx).Debug("mcp: tool failed", "tool", name, "err", err)
		}
		s.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("tool", name)))
		s.metrics.RecordToolCall(ctx, name, status)
		return res, out, err
	}
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcpsdk.Server {
	return s.srv
}

// Handler serves the tools over streamable HTTP.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.srv }, nil)
}

// Run serves the tools on t until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context, t mcpsdk.Transport) error {
	err := s.srv.Run(ctx, t)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
