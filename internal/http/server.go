// Package http serves the queue API, health probes and prometheus metrics.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"scqueue/internal/core"
	"scqueue/internal/deck"
	"scqueue/internal/flood"
	"scqueue/internal/i18n"
	"scqueue/internal/player"
	"scqueue/internal/stats"
)

const (
	serviceName     = "scqueue"
	generateScope   = "generate"
	maxSettingsBody = 4 << 10
	shutdownTimeout = 10 * time.Second
)

// Deck is the queue surface the API drives.
type Deck interface {
	Snapshot() deck.Snapshot
	Generate(ctx context.Context, force bool, progress core.ProgressFunc) (deck.Snapshot, error)
	Shuffle(ctx context.Context) deck.Snapshot
	PlayAt(ctx context.Context, index int) error
	Next(ctx context.Context) error
	Prev(ctx context.Context) error
	SkipAfter(ctx context.Context, index int) error
	Remove(ctx context.Context, index int) error
	UpdateSettings(ctx context.Context, settings core.QueueConfig) core.QueueConfig
	SeekTo(fraction float64)
	Toggle()
	Favorites() []core.Track
}

// PlayerStatus reports the playback state.
type PlayerStatus interface {
	Snapshot() player.Status
}

// Server is the HTTP front of a running queue.
type Server struct {
	config    *core.ServerConfig
	deck      Deck
	player    PlayerStatus
	metrics   *Metrics
	floodgate *flood.Floodgate
	localizer *i18n.Localizer
	logger    *zap.Logger
	server    *http.Server
}

// NewServer wires the routes. floodgate limits queue generations per client.
func NewServer(
	config *core.ServerConfig,
	d Deck,
	status PlayerStatus,
	metrics *Metrics,
	floodgate *flood.Floodgate,
	localizer *i18n.Localizer,
	logger *zap.Logger,
) *Server {
	s := &Server{
		config:    config,
		deck:      d,
		player:    status,
		metrics:   metrics,
		floodgate: floodgate,
		localizer: localizer,
		logger:    logger,
	}
	s.server = createHTTPServer(config, s.setupRoutes())
	return s
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", probeHandler("ok"))
	mux.HandleFunc("GET /readyz", probeHandler("ready"))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /{$}", homeHandler)

	s.handle(mux, "GET /api/state", "state", s.handleState)
	s.handle(mux, "POST /api/generate", "generate", s.handleGenerate)
	s.handle(mux, "POST /api/shuffle", "shuffle", s.handleShuffle)
	s.handle(mux, "POST /api/play/{index}", "play", s.withIndex(s.deck.PlayAt))
	s.handle(mux, "POST /api/skip-after/{index}", "skip_after", s.withIndex(s.deck.SkipAfter))
	s.handle(mux, "DELETE /api/queue/{index}", "remove", s.withIndex(s.deck.Remove))
	s.handle(mux, "POST /api/next", "next", s.withStep(s.deck.Next))
	s.handle(mux, "POST /api/prev", "prev", s.withStep(s.deck.Prev))
	s.handle(mux, "POST /api/seek", "seek", s.handleSeek)
	s.handle(mux, "POST /api/toggle", "toggle", s.handleToggle)
	s.handle(mux, "PUT /api/settings", "settings", s.handleSettings)
	s.handle(mux, "GET /api/stats", "stats", s.handleStats)

	return mux
}

// handle registers h and counts its responses under route.
func (s *Server) handle(mux *http.ServeMux, pattern, route string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.recordRequest(route, rec.status)
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

type stateResponse struct {
	Deck   deck.Snapshot `json:"deck"`
	Player player.Status `json:"player"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type generateResponse struct {
	deck.Snapshot
	Message string `json:"message"`
}

type settingsResponse struct {
	Settings core.QueueConfig `json:"settings"`
	Message  string           `json:"message"`
}

type statsResponse struct {
	stats.Stats
	Text string `json:"text"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, stateResponse{Deck: s.deck.Snapshot(), Player: s.player.Snapshot()})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	client := clientHost(r)
	if allowed, retryAfter := s.floodgate.Allow(generateScope, client); !allowed {
		seconds := int(math.Ceil(retryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		s.writeJSON(w, http.StatusTooManyRequests, messageResponse{
			Message: s.localizer.T("error.generate.flood", seconds),
		})
		return
	}

	force := r.URL.Query().Get("refresh") == "1"
	progress := func(msg string) {
		s.logger.Debug("Generate progress", zap.String("client", client), zap.String("step", msg))
	}

	snap, err := s.deck.Generate(r.Context(), force, progress)
	if err != nil {
		s.writeError(w, err, "")
		return
	}

	likes, feed := 0, 0
	for _, e := range snap.Queue {
		if e.Source == core.SourceFeed {
			feed++
		} else {
			likes++
		}
	}
	s.writeJSON(w, http.StatusOK, generateResponse{
		Snapshot: snap,
		Message:  s.localizer.T("status.generated", len(snap.Queue), likes, feed),
	})
}

func (s *Server) handleShuffle(w http.ResponseWriter, r *http.Request) {
	snap := s.deck.Shuffle(r.Context())
	s.writeJSON(w, http.StatusOK, generateResponse{
		Snapshot: snap,
		Message:  s.localizer.T("status.shuffled", len(snap.Queue)),
	})
}

// withIndex adapts a positional deck operation to a handler reading {index}.
func (s *Server) withIndex(op func(ctx context.Context, index int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.PathValue("index")
		index, err := strconv.Atoi(raw)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, messageResponse{
				Message: s.localizer.T("error.request.invalid", "index"),
			})
			return
		}
		if err := op(r.Context(), index); err != nil {
			s.writeError(w, err, raw)
			return
		}
		s.handleState(w, r)
	}
}

func (s *Server) withStep(op func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(r.Context()); err != nil {
			s.writeError(w, err, "")
			return
		}
		s.handleState(w, r)
	}
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	fraction, err := strconv.ParseFloat(r.URL.Query().Get("fraction"), 64)
	if err != nil || math.IsNaN(fraction) || fraction < 0 || fraction > 1 {
		s.writeJSON(w, http.StatusBadRequest, messageResponse{
			Message: s.localizer.T("error.request.invalid", "fraction"),
		})
		return
	}
	s.deck.SeekTo(fraction)
	s.handleState(w, r)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	s.deck.Toggle()
	s.handleState(w, r)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSettingsBody))
	if err != nil {
		s.writeError(w, err, "")
		return
	}

	settings := s.deck.Snapshot().Settings
	if err := json.Unmarshal(body, &settings); err != nil {
		s.writeJSON(w, http.StatusBadRequest, messageResponse{Message: s.localizer.T("error.settings.invalid")})
		return
	}

	applied := s.deck.UpdateSettings(r.Context(), settings)
	s.writeJSON(w, http.StatusOK, settingsResponse{
		Settings: applied,
		Message:  s.localizer.T("status.settings_saved"),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	favorites := s.deck.Favorites()
	if len(favorites) == 0 {
		s.writeJSON(w, http.StatusConflict, messageResponse{Message: s.localizer.T("error.stats.empty")})
		return
	}

	summary := stats.Compute(favorites)
	text := stats.Render(summary)
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := io.WriteString(w, text+"\n"); err != nil {
			s.logger.Debug("Failed to write stats", zap.Error(err))
		}
		return
	}
	s.writeJSON(w, http.StatusOK, statsResponse{Stats: summary, Text: text})
}

// writeError maps a domain error to a status code and a localized message.
func (s *Server) writeError(w http.ResponseWriter, err error, index string) {
	status, message := s.describe(err, index)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	} else {
		s.logger.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}
	s.writeJSON(w, status, messageResponse{Message: message})
}

func (s *Server) describe(err error, index string) (int, string) {
	var apiErr *core.APIError

	switch {
	case errors.Is(err, deck.ErrIndexOutOfRange):
		return http.StatusNotFound, s.localizer.T("error.queue.index", index)
	case errors.Is(err, deck.ErrEndOfQueue):
		return http.StatusConflict, s.localizer.T("error.queue.end")
	case errors.Is(err, deck.ErrStartOfQueue):
		return http.StatusConflict, s.localizer.T("error.queue.start")
	case errors.Is(err, deck.ErrGenerateInProgress):
		return http.StatusConflict, s.localizer.T("error.generate.busy")
	case errors.Is(err, core.ErrAuthMissing):
		return http.StatusUnauthorized, s.localizer.T("error.auth.missing")
	case errors.Is(err, core.ErrAuthExpired):
		return http.StatusUnauthorized, s.localizer.T("error.auth.expired")
	case errors.Is(err, core.ErrNoPlayableVariant), errors.Is(err, core.ErrNoCompatibleVariant):
		return http.StatusUnprocessableEntity, s.localizer.T("error.stream.unplayable")
	case errors.Is(err, core.ErrResolverUnavailable):
		return http.StatusServiceUnavailable, s.localizer.T("error.stream.unavailable")
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, s.localizer.T("error.api", apiErr.Status)
	default:
		return http.StatusInternalServerError, s.localizer.T("error.generic")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
		http.Error(w, s.localizer.T("error.generic"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("Failed to write response", zap.Error(err))
	}
}

func probeHandler(status string) http.HandlerFunc {
	body := fmt.Sprintf(`{"status":%q,"service":%q}`, status, serviceName)
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, body)
	}
}

func homeHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `<!DOCTYPE html>
<html>
<head>
    <title>scqueue</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #ff5500; }
    </style>
</head>
<body>
    <h1>scqueue</h1>
    <p>Mixed SoundCloud queue from your likes and feed.</p>

    <h2>Endpoints</h2>
    <div class="endpoint"><a href="/api/state">State</a> - queue and player</div>
    <div class="endpoint"><a href="/api/stats">Stats</a> - likes summary</div>
    <div class="endpoint"><a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint"><a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint"><a href="/readyz">Ready</a> - Readiness check</div>
</body>
</html>`)
}

// clientHost strips the port from the remote address.
func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func statusLabel(code int) string {
	return strconv.Itoa(code)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
