package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"steady/internal/core"
	"steady/internal/log"
	"steady/internal/query"
)

// allTime is the range listed when /api/periods is called without bounds.
var allTime = core.Range{
	From: time.Unix(0, 0).UTC(),
	To:   time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC),
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks every registered dependency
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	code := http.StatusOK
	checks := make(map[string]any, len(s.checks)+1)

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			checks[name] = "failed: " + err.Error()
			status = "not_ready"
			code = http.StatusServiceUnavailable
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", "check", name, "error", err)
			continue
		}
		checks[name] = "ok"
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asOf, err := ParseAsOf(q)
	if err != nil {
		writeError(w, r, log.OpForecast, err)
		return
	}
	confidence, err := ParseConfidence(q)
	if err != nil {
		writeError(w, r, log.OpForecast, err)
		return
	}
	cov, err := ParseCovariates(q)
	if err != nil {
		writeError(w, r, log.OpForecast, err)
		return
	}

	var opts []query.ForecastOption
	if len(cov) > 0 {
		opts = append(opts, query.WithCovariates(cov))
	}
	view, err := s.queries.GetForecast(r.Context(), asOf, confidence, opts...)
	if err != nil {
		writeError(w, r, log.OpForecast, err)
		return
	}
	NewJSONResponse().StoreVersion(view.StoreVersion).Body(view).Write(w)
}

func (s *Server) handleSteadiness(w http.ResponseWriter, r *http.Request) {
	req, err := ParseSteadinessRequest(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	view, err := s.queries.GetSteadiness(r.Context(), req)
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	NewJSONResponse().Body(view).Write(w)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := ParseSteadinessRequest(q)
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	if req.TrendWindow, err = parseInt(q, "window"); err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	trend, err := s.queries.GetVolatilityTrend(r.Context(), req)
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	NewJSONResponse().Body(trend).Write(w)
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	req, err := ParseSteadinessRequest(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	b, err := s.queries.GetBreakdown(r.Context(), req)
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	NewJSONResponse().Body(b).Write(w)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	top, err := ParseTopN(r.URL.Query(), defaultInsights)
	if err != nil {
		writeError(w, r, log.OpInsights, err)
		return
	}
	ranked, err := s.queries.GetInsights(r.Context(), top)
	if err != nil {
		writeError(w, r, log.OpInsights, err)
		return
	}
	if ranked == nil {
		ranked = []core.Insight{}
	}
	NewJSONResponse().Body(map[string]any{"insights": ranked}).Write(w)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asOf, err := ParseAsOf(q)
	if err != nil {
		writeError(w, r, log.OpOverview, err)
		return
	}
	confidence, err := ParseConfidence(q)
	if err != nil {
		writeError(w, r, log.OpOverview, err)
		return
	}
	ov, err := s.queries.GetOverview(r.Context(), asOf, confidence)
	if err != nil {
		writeError(w, r, log.OpOverview, err)
		return
	}
	NewJSONResponse().StoreVersion(ov.StoreVersion).Body(ov).Write(w)
}

func (s *Server) handleGoal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asOf, err := ParseAsOf(q)
	if err != nil {
		writeError(w, r, log.OpGoal, err)
		return
	}
	goal, err := ParseGoal(q)
	if err != nil {
		writeError(w, r, log.OpGoal, err)
		return
	}
	progress, err := s.queries.GetGoalProgress(r.Context(), goal, asOf)
	if err != nil {
		writeError(w, r, log.OpGoal, err)
		return
	}
	NewJSONResponse().StoreVersion(progress.StoreVersion).Body(progress).Write(w)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRecommendationRequest(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpRecommend, err)
		return
	}
	recs, err := s.queries.GetRecommendations(r.Context(), req)
	if err != nil {
		writeError(w, r, log.OpRecommend, err)
		return
	}
	NewJSONResponse().StoreVersion(recs.StoreVersion).Body(recs).Write(w)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	req, err := ParseScheduleRequest(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpSchedule, err)
		return
	}
	plan, err := s.queries.GetOptimalSchedule(r.Context(), req)
	if err != nil {
		writeError(w, r, log.OpSchedule, err)
		return
	}
	NewJSONResponse().StoreVersion(plan.StoreVersion).Body(plan).Write(w)
}

func (s *Server) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	rng, err := ParseRange(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	if rng == nil {
		rng = &allTime
	}
	periods, version, err := s.queries.Periods(r.Context(), *rng)
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	if periods == nil {
		periods = []core.EarningsPeriod{}
	}
	NewJSONResponse().StoreVersion(version).Body(map[string]any{
		"periods":       periods,
		"store_version": version,
	}).Write(w)
}

func (s *Server) handleAppendPeriods(w http.ResponseWriter, r *http.Request) {
	if s.writer == nil {
		writeReadOnly(w)
		return
	}
	periods, err := DecodePeriods(w, r)
	if err != nil {
		writeError(w, r, log.OpAppend, err)
		return
	}
	stored, err := s.writer.Append(r.Context(), periods)
	if err != nil {
		writeError(w, r, log.OpAppend, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(map[string]any{
		"appended": len(stored),
		"periods":  stored,
	}).Write(w)
}

func (s *Server) handleCorrectPeriod(w http.ResponseWriter, r *http.Request) {
	if s.writer == nil {
		writeReadOnly(w)
		return
	}
	id, err := core.ParsePeriodID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpCorrect, err)
		return
	}
	c, err := DecodeCorrection(w, r)
	if err != nil {
		writeError(w, r, log.OpCorrect, err)
		return
	}
	updated, err := s.writer.Correct(r.Context(), id, c)
	if err != nil {
		writeError(w, r, log.OpCorrect, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"period": updated}).Write(w)
}

func writeReadOnly(w http.ResponseWriter) {
	NewJSONResponse().
		Status(http.StatusMethodNotAllowed).
		Header("Allow", "GET").
		Body(ErrorBody{Error: ErrorDetail{Kind: "read_only", Message: "this instance does not accept writes"}}).
		Write(w)
}
