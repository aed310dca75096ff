// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request
// data: query parameters into view requests and JSON bodies into periods
// and corrections.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"steady/internal/core"
	"steady/internal/query"
)

const (
	dateLayout   = "2006-01-02"
	maxBodyBytes = 1 << 20
)

// ParseTime accepts a calendar date (midnight UTC) or an RFC 3339 instant.
func ParseTime(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, &core.ValidationError{Field: field, Constraint: "must be YYYY-MM-DD or RFC 3339"}
}

// ParseAsOf reads the optional as_of parameter; absent means "latest".
func ParseAsOf(q url.Values) (time.Time, error) {
	v := strings.TrimSpace(q.Get("as_of"))
	if v == "" {
		return time.Time{}, nil
	}
	return ParseTime("as_of", v)
}

// ParseConfidence reads the optional confidence parameter; zero selects
// the configured default.
func ParseConfidence(q url.Values) (float64, error) {
	return parseFloat(q, "confidence")
}

// ParseRange reads from/to. Both absent yields nil; one alone is an error.
func ParseRange(q url.Values) (*core.Range, error) {
	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))
	if from == "" && to == "" {
		return nil, nil
	}
	var r core.Range
	var err error
	if from != "" {
		if r.From, err = ParseTime("from", from); err != nil {
			return nil, err
		}
	}
	if to != "" {
		if r.To, err = ParseTime("to", to); err != nil {
			return nil, err
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// ParseSteadinessRequest selects the window by periods=N or by from/to,
// with an optional comma-separated population of reference scores.
func ParseSteadinessRequest(q url.Values) (query.SteadinessRequest, error) {
	var req query.SteadinessRequest

	n, err := parseInt(q, "periods")
	if err != nil {
		return req, err
	}
	rng, err := ParseRange(q)
	if err != nil {
		return req, err
	}
	if n != 0 && rng != nil {
		return req, &core.ValidationError{Field: "periods", Constraint: "cannot be combined with from/to"}
	}
	if n < 0 {
		return req, &core.InvalidConfigurationError{Field: "periods", Constraint: "must be positive", Value: n}
	}
	req.Periods, req.Range = n, rng

	if v := strings.TrimSpace(q.Get("population")); v != "" {
		for _, part := range strings.Split(v, ",") {
			f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return req, &core.ValidationError{Field: "population", Constraint: "must be a comma-separated list of numbers"}
			}
			req.Population = append(req.Population, f)
		}
	}
	return req, nil
}

// ParseTopN reads the optional top parameter; absent returns fallback.
func ParseTopN(q url.Values, fallback int) (int, error) {
	if strings.TrimSpace(q.Get("top")) == "" {
		return fallback, nil
	}
	n, err := parseInt(q, "top")
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, &core.ValidationError{Field: "top", Constraint: "must not be negative"}
	}
	return n, nil
}

// ParseRecommendationRequest reads as_of, goal and top. An absent goal
// leaves the configured weekly goal in charge.
func ParseRecommendationRequest(q url.Values) (query.RecommendationRequest, error) {
	var req query.RecommendationRequest
	var err error
	if req.AsOf, err = ParseAsOf(q); err != nil {
		return req, err
	}
	if req.Goal, err = ParseGoal(q); err != nil {
		return req, err
	}
	req.Top, err = ParseTopN(q, 0)
	return req, err
}

// ParseGoal reads the optional goal amount; zero selects the configured one.
func ParseGoal(q url.Values) (float64, error) {
	goal, err := parseFloat(q, "goal")
	if err != nil {
		return 0, err
	}
	if goal < 0 {
		return 0, &core.ValidationError{Field: "goal", Constraint: "must be positive"}
	}
	return goal, nil
}

// ParseScheduleRequest reads the required target and hours parameters.
func ParseScheduleRequest(q url.Values) (query.ScheduleRequest, error) {
	var req query.ScheduleRequest
	for _, f := range []struct {
		name string
		dst  *float64
	}{{"target", &req.Target}, {"hours", &req.AvailableHours}} {
		if strings.TrimSpace(q.Get(f.name)) == "" {
			return req, &core.ValidationError{Field: f.name, Constraint: "required"}
		}
		v, err := parseFloat(q, f.name)
		if err != nil {
			return req, err
		}
		*f.dst = v
	}
	return req, nil
}

// ParseCovariates collects target covariates passed as query parameters.
// Only the well-known names and zone shares are read. The literal
// "unknown" records an explicitly unknown reading; booleans map to 1/0.
func ParseCovariates(q url.Values) (core.Covariates, error) {
	var cov core.Covariates
	for name, values := range q {
		if !isCovariateName(name) || len(values) == 0 {
			continue
		}
		v := strings.ToLower(strings.TrimSpace(values[0]))
		if v == "" {
			continue
		}
		if cov == nil {
			cov = make(core.Covariates)
		}
		switch v {
		case "unknown", "null":
			cov[name] = core.CovariateValue{}
		case "true", "yes":
			cov[name] = core.Known(1)
		case "false", "no":
			cov[name] = core.Known(0)
		default:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, &core.ValidationError{Field: name, Constraint: "must be a number, a boolean or \"unknown\""}
			}
			cov[name] = core.Known(f)
		}
	}
	return cov, nil
}

func isCovariateName(name string) bool {
	switch name {
	case core.CovRainfall, core.CovHoliday, core.CovLocalEvents, core.CovDemandIndex:
		return true
	}
	return strings.HasPrefix(name, core.ZonePrefix) && len(name) > len(core.ZonePrefix)
}

func parseInt(q url.Values, field string) (int, error) {
	v := strings.TrimSpace(q.Get(field))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &core.ValidationError{Field: field, Constraint: "must be an integer"}
	}
	return n, nil
}

func parseFloat(q url.Values, field string) (float64, error) {
	v := strings.TrimSpace(q.Get(field))
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &core.ValidationError{Field: field, Constraint: "must be a number"}
	}
	return f, nil
}

// PeriodInput is the wire form of a period to append. Observed defaults
// to true; send false with no earnings to record a gap.
type PeriodInput struct {
	Start       time.Time       `json:"start"`
	End         time.Time       `json:"end"`
	Observed    *bool           `json:"observed,omitempty"`
	Gross       decimal.Decimal `json:"gross"`
	HoursActive float64         `json:"hours_active"`
	Trips       int             `json:"trips"`
	Covariates  core.Covariates `json:"covariates,omitempty"`
}

func (in PeriodInput) Period() core.EarningsPeriod {
	observed := in.Observed == nil || *in.Observed
	return core.EarningsPeriod{
		Start:       in.Start.UTC(),
		End:         in.End.UTC(),
		Observed:    observed,
		Gross:       in.Gross,
		HoursActive: in.HoursActive,
		Trips:       in.Trips,
		Covariates:  in.Covariates,
	}
}

// CorrectionInput is the wire form of a correction.
type CorrectionInput struct {
	PeriodInputValues
	Reason string `json:"reason"`
}

// PeriodInputValues carries the replacement values of a correction.
type PeriodInputValues struct {
	Observed    *bool           `json:"observed,omitempty"`
	Gross       decimal.Decimal `json:"gross"`
	HoursActive float64         `json:"hours_active"`
	Trips       int             `json:"trips"`
	Covariates  core.Covariates `json:"covariates,omitempty"`
}

func (in CorrectionInput) Correction() core.Correction {
	return core.Correction{
		Values: core.PeriodValues{
			Observed:    in.Observed == nil || *in.Observed,
			Gross:       in.Gross,
			HoursActive: in.HoursActive,
			Trips:       in.Trips,
			Covariates:  in.Covariates,
		},
		Reason: strings.TrimSpace(in.Reason),
	}
}

// DecodePeriods accepts either a JSON array of periods or a single object.
func DecodePeriods(w http.ResponseWriter, r *http.Request) ([]core.EarningsPeriod, error) {
	body, err := readBody(w, r)
	if err != nil {
		return nil, err
	}

	var inputs []PeriodInput
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var one PeriodInput
		if err := decodeStrict(body, &one); err != nil {
			return nil, err
		}
		inputs = []PeriodInput{one}
	} else if err := decodeStrict(body, &inputs); err != nil {
		return nil, err
	}

	periods := make([]core.EarningsPeriod, len(inputs))
	for i, in := range inputs {
		periods[i] = in.Period()
	}
	return periods, nil
}

func DecodeCorrection(w http.ResponseWriter, r *http.Request) (core.Correction, error) {
	body, err := readBody(w, r)
	if err != nil {
		return core.Correction{}, err
	}
	var in CorrectionInput
	if err := decodeStrict(body, &in); err != nil {
		return core.Correction{}, err
	}
	return in.Correction(), nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &core.ValidationError{Field: "body", Constraint: fmt.Sprintf("must not exceed %d bytes", maxBodyBytes)}
		}
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, &core.ValidationError{Field: "body", Constraint: "required"}
	}
	return body, nil
}

func decodeStrict(body []byte, v any) error {
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &core.ValidationError{Field: "body", Constraint: "malformed JSON: " + err.Error()}
	}
	if dec.More() {
		return &core.ValidationError{Field: "body", Constraint: "must contain a single JSON value"}
	}
	return nil
}
