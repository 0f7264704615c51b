package queryapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fydai/observability"
	"fydai/services/execution"
	"fydai/services/journal"
	"fydai/services/series"
)

// Snapshotter is the read side of the series aggregator.
type Snapshotter interface {
	List() []series.Series
	Get(maturity int64) (series.Series, bool)
	Active() (series.Series, bool)
	State() series.State
	Refresh(ctx context.Context, maturities ...int64) error
}

// ActionSource lists in-flight actions. *execution.Tracker satisfies it.
type ActionSource interface {
	Pending() []execution.PendingAction
}

// History lists journaled actions. *journal.Journal satisfies it.
type History interface {
	Recent(ctx context.Context, f journal.Filter) ([]journal.Entry, error)
}

// Config bounds the API.
type Config struct {
	RateLimit      float64
	Burst          int
	RefreshTimeout time.Duration
	Auth           AuthConfig
	// OriginPatterns are the websocket origins accepted besides the host itself.
	OriginPatterns []string
}

// Server exposes the snapshot over HTTP.
type Server struct {
	snapshot Snapshotter
	actions  ActionSource
	events   EventSource
	history  History
	cfg      Config
	auth     *authenticator
	limiter  *clientLimiter
	logger   *slog.Logger
	metrics  *observability.HTTPMetrics
}

// Option customises the server.
type Option func(*Server)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records request outcomes.
func WithMetrics(metrics *observability.HTTPMetrics) Option {
	return func(s *Server) { s.metrics = metrics }
}

// WithActions reports in-flight actions on /status.
func WithActions(actions ActionSource) Option {
	return func(s *Server) { s.actions = actions }
}

// WithEvents streams refresh events on /events.
func WithEvents(events EventSource) Option {
	return func(s *Server) { s.events = events }
}

// WithHistory serves journaled actions on /actions.
func WithHistory(history History) Option {
	return func(s *Server) { s.history = history }
}

// New builds a server over snapshot.
func New(snapshot Snapshotter, cfg Config, opts ...Option) *Server {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 20 * time.Second
	}
	s := &Server{
		snapshot: snapshot,
		cfg:      cfg,
		auth:     newAuthenticator(cfg.Auth),
		limiter:  newClientLimiter(cfg.RateLimit, cfg.Burst),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observe)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(s.limit)
		r.Get("/series", s.handleList)
		r.Get("/series/active", s.handleActive)
		r.Get("/series/{maturity}", s.handleGet)
		r.Get("/status", s.handleStatus)
		if s.history != nil {
			r.Get("/actions", s.handleActions)
		}
		if s.events != nil {
			r.Get("/events", s.handleEvents)
		}
		r.With(s.auth.require(ScopeRefresh)).Post("/refresh", s.handleRefresh)
	})
	return otelhttp.NewHandler(r, "fydai.queryapi")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("queryapi: response writer cannot be hijacked")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.metrics.Observe(route, rec.status, time.Since(start))
	})
}

func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientID(r)) {
			s.metrics.RecordThrottle("client")
			writeError(w, http.StatusTooManyRequests, errors.New(http.StatusText(http.StatusTooManyRequests)))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type listResponse struct {
	State   string          `json:"state"`
	Loading bool            `json:"loading"`
	Series  []series.Series `json:"series"`
}

type seriesResponse struct {
	State   string        `json:"state"`
	Loading bool          `json:"loading"`
	Series  series.Series `json:"series"`
}

type statusResponse struct {
	State   string                    `json:"state"`
	Loading bool                      `json:"loading"`
	Tracked int                       `json:"tracked"`
	Active  *int64                    `json:"active,omitempty"`
	Pending []execution.PendingAction `json:"pending"`
}

func (s *Server) state() (string, bool) {
	st := s.snapshot.State()
	return st.String(), st != series.Ready
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	state, loading := s.state()
	list := s.snapshot.List()
	if list == nil {
		list = []series.Series{}
	}
	writeJSON(w, http.StatusOK, listResponse{State: state, Loading: loading, Series: list})
}

func (s *Server) handleActive(w http.ResponseWriter, _ *http.Request) {
	state, loading := s.state()
	active, ok := s.snapshot.Active()
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no active series"))
		return
	}
	writeJSON(w, http.StatusOK, seriesResponse{State: state, Loading: loading, Series: active})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	maturity, err := strconv.ParseInt(chi.URLParam(r, "maturity"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("maturity must be a unix timestamp"))
		return
	}
	entry, ok := s.snapshot.Get(maturity)
	if !ok {
		writeError(w, http.StatusNotFound, series.ErrUnknownSeries)
		return
	}
	state, loading := s.state()
	writeJSON(w, http.StatusOK, seriesResponse{State: state, Loading: loading, Series: entry})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	state, loading := s.state()
	resp := statusResponse{
		State:   state,
		Loading: loading,
		Tracked: len(s.snapshot.List()),
		Pending: []execution.PendingAction{},
	}
	if active, ok := s.snapshot.Active(); ok {
		m := active.Maturity
		resp.Active = &m
	}
	if s.actions != nil {
		resp.Pending = append(resp.Pending, s.actions.Pending()...)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var maturities []int64
	for _, raw := range r.URL.Query()["maturity"] {
		m, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("maturity must be a unix timestamp"))
			return
		}
		maturities = append(maturities, m)
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RefreshTimeout)
	defer cancel()
	if err := s.snapshot.Refresh(ctx, maturities...); err != nil {
		if errors.Is(err, series.ErrUnknownSeries) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		s.logger.Warn("refresh via api failed", "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	state, loading := s.state()
	writeJSON(w, http.StatusOK, listResponse{State: state, Loading: loading, Series: s.snapshot.List()})
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := journal.Filter{Account: q.Get("account"), Verb: q.Get("verb")}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		f.Limit = n
	}
	entries, err := s.history.Recent(r.Context(), f)
	if err != nil {
		s.logger.Warn("journal query failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("journal unavailable"))
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": entries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
