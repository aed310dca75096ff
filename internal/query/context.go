package query

import (
	"context"

	"steady/internal/core"
)

// ContextSource supplies covariates for a forecast target: weather,
// holidays, local events, demand indices. Readings it cannot provide must
// be returned as unknown rather than omitted.
type ContextSource interface {
	Covariates(ctx context.Context, target core.TargetPeriod) (core.Covariates, error)
}

// StaticContext serves covariates from memory, keyed by the target's start
// date (YYYY-MM-DD). Default applies to dates without an entry.
type StaticContext struct {
	Default core.Covariates
	ByDate  map[string]core.Covariates
	// Expected lists covariates reported as unknown when no reading exists.
	Expected []string
}

func (s StaticContext) Covariates(_ context.Context, target core.TargetPeriod) (core.Covariates, error) {
	out := s.Default.Clone()
	if day, ok := s.ByDate[target.Start.UTC().Format(dateLayout)]; ok {
		if out == nil {
			out = make(core.Covariates, len(day))
		}
		for k, v := range day {
			out[k] = v
		}
	}
	for _, name := range s.Expected {
		if out == nil {
			out = make(core.Covariates, len(s.Expected))
		}
		if _, ok := out[name]; !ok {
			out[name] = core.CovariateValue{}
		}
	}
	return out, nil
}

// mergeCovariates overlays explicit onto base; explicit readings win.
func mergeCovariates(base, explicit core.Covariates) core.Covariates {
	if len(explicit) == 0 {
		return base
	}
	out := base.Clone()
	if out == nil {
		out = make(core.Covariates, len(explicit))
	}
	for k, v := range explicit {
		out[k] = v
	}
	return out
}
