package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"steady/internal/core"
	"steady/internal/log"
	"steady/internal/metrics"
	"steady/internal/middleware/ratelimit"
	"steady/internal/middleware/security"
	"steady/internal/middleware/trace"
	"steady/internal/query"
)

// Queries is the read side served by the API.
type Queries interface {
	GetForecast(ctx context.Context, asOf time.Time, confidence float64, opts ...query.ForecastOption) (query.ForecastView, error)
	GetSteadiness(ctx context.Context, req query.SteadinessRequest) (query.SteadinessView, error)
	GetVolatilityTrend(ctx context.Context, req query.SteadinessRequest) (core.VolatilityTrend, error)
	GetBreakdown(ctx context.Context, req query.SteadinessRequest) (core.Breakdown, error)
	GetInsights(ctx context.Context, topN int) ([]core.Insight, error)
	GetOverview(ctx context.Context, asOf time.Time, confidence float64) (query.Overview, error)
	Periods(ctx context.Context, r core.Range) ([]core.EarningsPeriod, uint64, error)
	GetGoalProgress(ctx context.Context, goal float64, asOf time.Time) (query.GoalProgress, error)
	GetRecommendations(ctx context.Context, req query.RecommendationRequest) (query.Recommendations, error)
	GetOptimalSchedule(ctx context.Context, req query.ScheduleRequest) (query.Schedule, error)
}

// Writer is the write side; services.Ledger implements it.
type Writer interface {
	Append(ctx context.Context, periods []core.EarningsPeriod) ([]core.EarningsPeriod, error)
	Correct(ctx context.Context, id core.PeriodID, c core.Correction) (core.EarningsPeriod, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type ServerOption func(*Server)

func WithLogger(logger *log.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithReadinessCheck registers a named dependency checked by /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) ServerOption {
	return func(s *Server) {
		if check != nil {
			s.checks[name] = check
		}
	}
}

func WithRateLimit(cfg ratelimit.Config) ServerOption {
	return func(s *Server) { s.rateLimit = cfg }
}

// WithTrustedProxies adds networks whose forwarding headers are honored.
func WithTrustedProxies(cidrs ...string) ServerOption {
	return func(s *Server) { s.trustedProxies = append(s.trustedProxies, cidrs...) }
}

type Server struct {
	http.Server

	queries Queries
	writer  Writer
	checks  map[string]ReadinessCheck
	logger  *log.Logger
	started time.Time

	rateLimit      ratelimit.Config
	trustedProxies []string
	limiter        *ratelimit.Limiter
	detector       *security.Detector

	shutdownOnce sync.Once
}

const (
	defaultInsights = 5
	readyTimeout    = 5 * time.Second
)

// NewServer wires routes and middleware, returning a ready-to-run server.
// A nil writer serves the API read-only.
func NewServer(addr string, q Queries, w Writer, opts ...ServerOption) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		queries:   q,
		writer:    w,
		checks:    make(map[string]ReadinessCheck),
		logger:    log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP),
		started:   time.Now(),
		rateLimit: ratelimit.DefaultConfig(),
		detector:  security.NewDetector(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, cidr := range s.trustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}
	s.limiter = ratelimit.NewLimiter(s.rateLimit)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/forecast", s.handleForecast)
	mux.HandleFunc("GET /api/steadiness", s.handleSteadiness)
	mux.HandleFunc("GET /api/steadiness/trend", s.handleTrend)
	mux.HandleFunc("GET /api/steadiness/breakdown", s.handleBreakdown)
	mux.HandleFunc("GET /api/insights", s.handleInsights)
	mux.HandleFunc("GET /api/overview", s.handleOverview)
	mux.HandleFunc("GET /api/goal", s.handleGoal)
	mux.HandleFunc("GET /api/recommendations", s.handleRecommendations)
	mux.HandleFunc("GET /api/schedule", s.handleSchedule)
	mux.HandleFunc("GET /api/periods", s.handleListPeriods)
	mux.HandleFunc("POST /api/periods", s.handleAppendPeriods)
	mux.HandleFunc("POST /api/periods/{id}/corrections", s.handleCorrectPeriod)

	// Outermost first: tracing sees every response, including rate-limit rejections.
	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, writeRateLimited, http.MethodPost)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	h = trace.NewMiddleware(s.logger, s.detector.ExtractClientIP).Middleware(h)
	s.Handler = h

	return s, nil
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
