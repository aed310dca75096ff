// Package digest builds the periodic earnings summary and publishes it.
package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"steady/internal/core"
	"steady/internal/log"
	"steady/internal/metrics"
	"steady/internal/query"
	"steady/internal/sheets"
)

// Digest is the payload published on the digest channel.
type Digest struct {
	GeneratedAt  time.Time             `json:"generated_at"`
	StoreVersion uint64                `json:"store_version"`
	LatestPeriod *core.Window          `json:"latest_period,omitempty"`
	LastGross    float64               `json:"last_gross"`
	Forecast     *query.ForecastView   `json:"forecast,omitempty"`
	Steadiness   *query.SteadinessView `json:"steadiness,omitempty"`
	Highlights   []string              `json:"highlights"`
	Insights     []core.Insight        `json:"insights"`
	Goal         *query.GoalProgress   `json:"goal,omitempty"`
	Unavailable  map[string]string     `json:"unavailable,omitempty"`
}

// Build turns an overview into a digest stamped at now.
func Build(ov query.Overview, now time.Time) Digest {
	d := Digest{
		GeneratedAt:  now.UTC(),
		StoreVersion: ov.StoreVersion,
		Forecast:     ov.Forecast,
		Steadiness:   ov.Steadiness,
		Insights:     ov.Insights,
		Goal:         ov.Goal,
		Highlights:   make([]string, 0, len(ov.Insights)),
		Unavailable:  ov.Unavailable,
	}
	if d.Insights == nil {
		d.Insights = []core.Insight{}
	}
	if ov.Forecast != nil {
		b := ov.Forecast.Basis
		d.LatestPeriod = &core.Window{From: b.From, To: b.To, Periods: b.Observed}
		d.LastGross = ov.Forecast.LastObserved
	}
	for _, in := range d.Insights {
		d.Highlights = append(d.Highlights, in.Headline())
	}
	return d
}

// SummaryRow flattens a digest into one line of the summary sheet.
func (d Digest) SummaryRow() sheets.SummaryRow {
	row := sheets.SummaryRow{
		GeneratedAt: d.GeneratedAt,
		Gross:       decimal.NewFromFloat(d.LastGross).Round(2),
	}
	if d.LatestPeriod != nil {
		row.LatestPeriod = d.LatestPeriod.To
	}
	if d.Steadiness != nil {
		row.Score = d.Steadiness.Score
	}
	if d.Forecast != nil {
		row.ForecastPoint = d.Forecast.PointEstimate
		row.ForecastLower = d.Forecast.LowerBound
		row.ForecastUpper = d.Forecast.UpperBound
	}
	if len(d.Highlights) > 0 {
		row.TopInsight = d.Highlights[0]
	}
	return row
}

type (
	Overviewer interface {
		GetOverview(ctx context.Context, asOf time.Time, confidence float64) (query.Overview, error)
	}

	Publisher interface {
		PublishDigest(ctx context.Context, v any) (int64, error)
	}
)

type Option func(*Job)

// WithSummaryWriter also appends each digest to a summary sheet.
func WithSummaryWriter(w sheets.SummaryWriter) Option {
	return func(j *Job) { j.summary = w }
}

func WithLogger(logger *log.Logger) Option {
	return func(j *Job) { j.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

// Job computes and publishes one digest per Run.
type Job struct {
	overviews Overviewer
	publisher Publisher
	summary   sheets.SummaryWriter
	logger    *log.Logger
	now       func() time.Time
}

func NewJob(overviews Overviewer, publisher Publisher, opts ...Option) *Job {
	j := &Job{
		overviews: overviews,
		publisher: publisher,
		logger:    log.New(log.DefaultConfig()).WithComponent(log.ComponentDigest),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run publishes the digest of the latest data. A failed sheet write is
// logged but does not fail the run once the digest is out.
func (j *Job) Run(ctx context.Context) (Digest, error) {
	ov, err := j.overviews.GetOverview(ctx, time.Time{}, 0)
	if err != nil {
		return Digest{}, fmt.Errorf("compute overview: %w", err)
	}
	d := Build(ov, j.now())

	receivers, err := j.publisher.PublishDigest(ctx, d)
	if err != nil {
		return Digest{}, fmt.Errorf("publish digest: %w", err)
	}
	metrics.DigestsPublished.Inc()
	j.logger.InfoContext(ctx, "Digest published",
		"store_version", d.StoreVersion,
		"receivers", receivers,
		"insights", len(d.Insights),
		"unavailable", len(d.Unavailable))

	if j.summary != nil {
		ref, err := j.summary.AppendSummary(ctx, d.SummaryRow())
		if err != nil {
			log.NewStructuredLogger(j.logger).LogError(ctx, "Failed to write digest summary", err, log.ComponentDigest, log.OpPublish, nil)
		} else {
			j.logger.InfoContext(ctx, "Digest summary written", "range", ref)
		}
	}
	return d, nil
}
