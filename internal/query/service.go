// Package query composes the store, the steadiness estimator, the forecast
// engine and the insight extractor into read-only views. Every view is
// computed from a single store snapshot, and cached results are scoped to
// the snapshot's version.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"steady/internal/cache"
	"steady/internal/core"
	"steady/internal/forecast"
	"steady/internal/insights"
	"steady/internal/log"
	"steady/internal/metrics"
	"steady/internal/steadiness"
	"steady/internal/store"
)

const dateLayout = "2006-01-02"

// SnapshotSource is the read side of the record store.
type SnapshotSource interface {
	Snapshot() *store.Snapshot
}

type (
	// SteadinessRequest selects a window either by its last Periods
	// entries or by Range. Population, when given, adds percentile framing.
	// TrendWindow overrides the configured rolling window of a trend.
	SteadinessRequest struct {
		Periods     int
		Range       *core.Range
		Population  []float64
		TrendWindow int
	}

	SteadinessView struct {
		core.SteadinessSnapshot
		Percentile *float64 `json:"percentile,omitempty"`
		Comparison string   `json:"comparison,omitempty"`
	}

	ForecastView struct {
		core.ForecastResult
		StoreVersion uint64 `json:"store_version"`
	}
)

type ForecastOption func(*forecastRequest)

type forecastRequest struct {
	covariates core.Covariates
}

// WithCovariates supplies target covariates that override the context source.
func WithCovariates(c core.Covariates) ForecastOption {
	return func(r *forecastRequest) { r.covariates = c }
}

type Option func(*Service)

func WithContextSource(cs ContextSource) Option {
	return func(s *Service) { s.context = cs }
}

// WithClock sets the time used when a goal query has no as_of.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	source     SnapshotSource
	cfg        Config
	estimator  *steadiness.Estimator
	extractor  *insights.Extractor
	engine     *forecast.Engine
	context    ContextSource
	now        func() time.Time
	forecasts  *cache.Versioned[ForecastView]
	steadiness *cache.Versioned[SteadinessView]
	insightSet *cache.Versioned[*insights.Set]
	lrus       map[string]cache.Cleaner
}

func NewService(source SnapshotSource, cfg Config, opts ...Option) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("query service requires a snapshot source")
	}
	if !(cfg.DefaultConfidence > 0 && cfg.DefaultConfidence < 1) {
		return nil, &core.InvalidConfigurationError{Field: "default_confidence", Constraint: "must be between 0 and 1 exclusive", Value: cfg.DefaultConfidence}
	}
	if cfg.DefaultPeriods < 1 {
		return nil, &core.InvalidConfigurationError{Field: "default_periods", Constraint: "must be at least 1", Value: cfg.DefaultPeriods}
	}

	est, err := steadiness.NewEstimator(cfg.Steadiness)
	if err != nil {
		return nil, err
	}
	ext, err := insights.NewExtractor(cfg.Insights)
	if err != nil {
		return nil, err
	}
	eng, err := forecast.NewEngine(cfg.Forecast, est, ext)
	if err != nil {
		return nil, err
	}

	forecastLRU := cache.NewLRUCache[ForecastView](cfg.CacheSize, cfg.CacheTTL)
	steadinessLRU := cache.NewLRUCache[SteadinessView](cfg.CacheSize, cfg.CacheTTL)
	insightLRU := cache.NewLRUCache[*insights.Set](cfg.CacheSize, cfg.CacheTTL)

	s := &Service{
		source:     source,
		cfg:        cfg,
		estimator:  est,
		extractor:  ext,
		engine:     eng,
		now:        time.Now,
		forecasts:  cache.NewVersioned[ForecastView](forecastLRU),
		steadiness: cache.NewVersioned[SteadinessView](steadinessLRU),
		insightSet: cache.NewVersioned[*insights.Set](insightLRU),
		lrus:       map[string]cache.Cleaner{"forecast": forecastLRU, "steadiness": steadinessLRU, "insights": insightLRU},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Caches returns the underlying caches by name, for periodic expiry.
func (s *Service) Caches() map[string]cache.Cleaner { return s.lrus }

// GetForecast projects the period that follows the latest period starting
// at or before asOf, with the same length. A zero asOf uses the latest
// period in the store; a zero confidence uses the configured default.
func (s *Service) GetForecast(ctx context.Context, asOf time.Time, confidence float64, opts ...ForecastOption) (ForecastView, error) {
	defer metrics.ObserveQuery("forecast", time.Now())
	return s.forecast(ctx, s.source.Snapshot(), asOf, confidence, opts...)
}

func (s *Service) forecast(ctx context.Context, snap *store.Snapshot, asOf time.Time, confidence float64, opts ...ForecastOption) (ForecastView, error) {
	var req forecastRequest
	for _, opt := range opts {
		opt(&req)
	}
	if confidence == 0 {
		confidence = s.cfg.DefaultConfidence
	}
	if !(confidence > 0 && confidence < 1) {
		return ForecastView{}, &core.InvalidConfigurationError{Field: "confidence", Constraint: "must be between 0 and 1 exclusive", Value: confidence}
	}

	view := snap
	if !asOf.IsZero() {
		view = snap.Until(asOf)
	}
	latest, ok := view.Latest()
	if !ok {
		return ForecastView{}, &core.InsufficientDataError{Constraint: "periods at or before as_of", Need: 1, Have: 0}
	}
	target := core.TargetPeriod{Start: latest.End, End: latest.End.Add(latest.Duration())}

	if s.context != nil {
		cov, err := s.context.Covariates(ctx, target)
		if err != nil {
			return ForecastView{}, fmt.Errorf("resolve target covariates: %w", err)
		}
		target.Covariates = cov
	}
	target.Covariates = mergeCovariates(target.Covariates, req.covariates)

	key := forecastKey(latest.ID, confidence, target.Covariates)
	if cached, ok := s.forecasts.Get(snap.Version(), key); ok {
		metrics.CacheHit("forecast")
		return cached, nil
	}
	metrics.CacheMiss("forecast")

	history := view.Periods()
	set := s.insightsFor(view, latest.ID)
	res, err := s.engine.ForecastWithInsights(history, target, confidence, set)
	if err != nil {
		return ForecastView{}, err
	}
	if res.IsDegraded() {
		metrics.ForecastsDegraded.Inc()
		slog.DebugContext(ctx, "Forecast degraded",
			log.FieldComponent, log.ComponentQuery,
			"target_start", target.Start,
			"constraint", res.Degraded.Constraint,
			"need", res.Degraded.Need,
			"have", res.Degraded.Have)
	}

	out := ForecastView{ForecastResult: res, StoreVersion: snap.Version()}
	s.forecasts.Set(snap.Version(), key, out)
	return out, nil
}

// GetSteadiness summarizes the requested window.
func (s *Service) GetSteadiness(ctx context.Context, req SteadinessRequest) (SteadinessView, error) {
	defer metrics.ObserveQuery("steadiness", time.Now())
	return s.steadinessOf(s.source.Snapshot(), req)
}

func (s *Service) steadinessOf(snap *store.Snapshot, req SteadinessRequest) (SteadinessView, error) {
	periods, key, err := s.window(snap, req)
	if err != nil {
		return SteadinessView{}, err
	}
	for _, v := range req.Population {
		if v < 0 || v > 100 {
			return SteadinessView{}, &core.ValidationError{Field: "population", Constraint: "scores must be between 0 and 100"}
		}
	}
	key += populationKey(req.Population)

	if cached, ok := s.steadiness.Get(snap.Version(), key); ok {
		metrics.CacheHit("steadiness")
		return cached, nil
	}
	metrics.CacheMiss("steadiness")

	snapshot, err := s.estimator.Estimate(periods)
	if err != nil {
		return SteadinessView{}, err
	}
	view := SteadinessView{SteadinessSnapshot: snapshot}
	if len(req.Population) > 0 {
		p := steadiness.Percentile(snapshot.Score, req.Population)
		view.Percentile = &p
		view.Comparison = steadiness.ComparisonText(p)
	}
	s.steadiness.Set(snap.Version(), key, view)
	return view, nil
}

// GetInsights returns up to topN ranked insights over the whole store;
// topN <= 0 returns all of them.
func (s *Service) GetInsights(ctx context.Context, topN int) ([]core.Insight, error) {
	defer metrics.ObserveQuery("insights", time.Now())
	snap := s.source.Snapshot()
	latest, ok := snap.Latest()
	if !ok {
		return []core.Insight{}, nil
	}
	return s.insightsFor(snap, latest.ID).Top(topN), nil
}

// GetVolatilityTrend reports rolling volatility over the requested window.
func (s *Service) GetVolatilityTrend(ctx context.Context, req SteadinessRequest) (core.VolatilityTrend, error) {
	defer metrics.ObserveQuery("volatility_trend", time.Now())
	periods, _, err := s.window(s.source.Snapshot(), req)
	if err != nil {
		return core.VolatilityTrend{}, err
	}
	if req.TrendWindow != 0 {
		return s.estimator.TrendWithWindow(periods, req.TrendWindow)
	}
	return s.estimator.Trend(periods)
}

// GetBreakdown splits steadiness of the requested window into hours and
// hourly-rate consistency.
func (s *Service) GetBreakdown(ctx context.Context, req SteadinessRequest) (core.Breakdown, error) {
	defer metrics.ObserveQuery("breakdown", time.Now())
	periods, _, err := s.window(s.source.Snapshot(), req)
	if err != nil {
		return core.Breakdown{}, err
	}
	return s.estimator.Breakdown(periods)
}

// Periods lists the stored periods overlapping r.
func (s *Service) Periods(ctx context.Context, r core.Range) ([]core.EarningsPeriod, uint64, error) {
	if err := r.Validate(); err != nil {
		return nil, 0, err
	}
	snap := s.source.Snapshot()
	return snap.Query(r), snap.Version(), nil
}

// insightsFor returns the insight set of view, shared between requests
// that see the same latest period at the same store version.
func (s *Service) insightsFor(view *store.Snapshot, latest core.PeriodID) *insights.Set {
	key := "insights:" + string(latest)
	if set, ok := s.insightSet.Get(view.Version(), key); ok {
		return set
	}
	set := s.extractor.Extract(view.Periods())
	s.insightSet.Set(view.Version(), key, set)
	return set
}

// window resolves the periods of req. The key names the window within
// snap: views cut at as_of share the store version, so it also carries
// the view's latest period.
func (s *Service) window(snap *store.Snapshot, req SteadinessRequest) ([]core.EarningsPeriod, string, error) {
	scope := "upto:-:"
	if latest, ok := snap.Latest(); ok {
		scope = "upto:" + string(latest.ID) + ":"
	}
	if req.Range != nil {
		if err := req.Range.Validate(); err != nil {
			return nil, "", err
		}
		key := fmt.Sprintf("%srange:%d:%d", scope, req.Range.From.UnixNano(), req.Range.To.UnixNano())
		return snap.Query(*req.Range), key, nil
	}
	n := req.Periods
	if n == 0 {
		n = s.cfg.DefaultPeriods
	}
	if n < 0 {
		return nil, "", &core.InvalidConfigurationError{Field: "periods", Constraint: "must be positive", Value: n}
	}
	return snap.Last(n), scope + "last:" + strconv.Itoa(n), nil
}

func forecastKey(latest core.PeriodID, confidence float64, cov core.Covariates) string {
	var b strings.Builder
	b.WriteString("forecast:")
	b.WriteString(string(latest))
	b.WriteString(":")
	b.WriteString(strconv.FormatFloat(confidence, 'g', -1, 64))
	if len(cov) > 0 {
		// encoding/json sorts map keys, so equal covariates give equal keys.
		enc, _ := json.Marshal(cov)
		b.WriteString(":")
		b.Write(enc)
	}
	return b.String()
}

func populationKey(pop []float64) string {
	if len(pop) == 0 {
		return ""
	}
	parts := make([]string, len(pop))
	for i, v := range pop {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return ":pop=" + strings.Join(parts, ",")
}
