// Package insights mines earnings periods for features that move gross
// earnings: calendar position, weather, events, zones and workload.
package insights

import (
	"cmp"
	"iter"
	"math"
	"slices"
	"sync"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"steady/internal/core"
)

type Config struct {
	// MinSupport is the minimum number of periods on each side of a comparison.
	MinSupport int
	// NoiseFloor is the minimum absolute effect, in percent, worth reporting.
	NoiseFloor float64
	// MaxPValue drops insights whose Welch t-test p-value exceeds it. Zero disables the gate.
	MaxPValue float64
	// ZoneShare is the fraction of a period spent in a zone for the zone to count as present.
	ZoneShare float64

	StrongEffect    float64
	StrongSupport   int
	ModerateEffect  float64
	ModerateSupport int
}

func DefaultConfig() Config {
	return Config{
		MinSupport:      5,
		NoiseFloor:      5,
		MaxPValue:       0,
		ZoneShare:       0.5,
		StrongEffect:    20,
		StrongSupport:   12,
		ModerateEffect:  10,
		ModerateSupport: 8,
	}
}

func (c Config) Validate() error {
	if c.MinSupport < 2 {
		return &core.InvalidConfigurationError{Field: "min_support", Constraint: "must be at least 2", Value: c.MinSupport}
	}
	if c.NoiseFloor < 0 {
		return &core.InvalidConfigurationError{Field: "noise_floor", Constraint: "must be non-negative", Value: c.NoiseFloor}
	}
	if c.MaxPValue < 0 || c.MaxPValue > 1 {
		return &core.InvalidConfigurationError{Field: "max_p_value", Constraint: "must be between 0 and 1", Value: c.MaxPValue}
	}
	if c.ZoneShare <= 0 || c.ZoneShare > 1 {
		return &core.InvalidConfigurationError{Field: "zone_share", Constraint: "must be in (0, 1]", Value: c.ZoneShare}
	}
	if c.StrongEffect < c.ModerateEffect || c.StrongSupport < c.ModerateSupport {
		return &core.InvalidConfigurationError{Field: "strength_thresholds", Constraint: "strong must not be below moderate", Value: c.StrongEffect}
	}
	return nil
}

type Extractor struct {
	cfg Config
}

func NewExtractor(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{cfg: cfg}, nil
}

func (x *Extractor) Config() Config { return x.cfg }

// Extract returns the insights for periods. Nothing is computed until the
// set is first read.
func (x *Extractor) Extract(periods []core.EarningsPeriod) *Set {
	return &Set{x: x, periods: periods}
}

// Set is a lazily computed, ranked collection of insights. It can be
// iterated any number of times.
type Set struct {
	x       *Extractor
	periods []core.EarningsPeriod
	once    sync.Once
	ranked  []core.Insight
}

func (s *Set) compute() []core.Insight {
	s.once.Do(func() {
		s.ranked = s.x.rank(s.x.evaluate(s.periods))
		s.periods = nil
	})
	return s.ranked
}

// All yields insights strongest first.
func (s *Set) All() iter.Seq[core.Insight] {
	return func(yield func(core.Insight) bool) {
		for _, in := range s.compute() {
			if !yield(in) {
				return
			}
		}
	}
}

func (s *Set) Len() int { return len(s.compute()) }

// Top returns up to n insights; n <= 0 returns all of them.
func (s *Set) Top(n int) []core.Insight {
	ranked := s.compute()
	if n <= 0 || n > len(ranked) {
		n = len(ranked)
	}
	return slices.Clone(ranked[:n])
}

// Active returns the covariate-driven insights with at least minSupport
// periods whose condition holds for cov.
func (s *Set) Active(cov core.Covariates, minSupport int) []core.Insight {
	var out []core.Insight
	for in := range s.All() {
		if in.SupportCount < minSupport {
			continue
		}
		cond, ok := in.Condition()
		if !ok {
			continue
		}
		if present, known := cond.Holds(cov); known && present {
			out = append(out, in)
		}
	}
	return out
}

func (x *Extractor) evaluate(periods []core.EarningsPeriod) []core.Insight {
	observed := core.ObservedOnly(periods)
	var out []core.Insight
	for _, f := range x.features(observed) {
		if in, ok := x.compare(f, observed); ok {
			out = append(out, in)
		}
	}
	return out
}

// compare splits periods by f and reports the effect if it clears every gate.
func (x *Extractor) compare(f feature, periods []core.EarningsPeriod) (core.Insight, bool) {
	var present, absent []float64
	for _, p := range periods {
		has, known := f.classify(p)
		if !known {
			continue
		}
		if has {
			present = append(present, p.GrossValue())
		} else {
			absent = append(absent, p.GrossValue())
		}
	}
	if len(present) < x.cfg.MinSupport || len(absent) < x.cfg.MinSupport {
		return core.Insight{}, false
	}

	presentMean := stat.Mean(present, nil)
	absentMean := stat.Mean(absent, nil)
	if absentMean == 0 {
		return core.Insight{}, false
	}
	effect := (presentMean - absentMean) / absentMean * 100
	if math.Abs(effect) < x.cfg.NoiseFloor {
		return core.Insight{}, false
	}
	p := welchPValue(present, absent)
	if x.cfg.MaxPValue > 0 && p > x.cfg.MaxPValue {
		return core.Insight{}, false
	}

	return core.Insight{
		Kind:          f.detail.PatternKind(),
		Feature:       f.name,
		EffectSize:    effect,
		SupportCount:  len(present),
		BaselineCount: len(absent),
		PresentMean:   presentMean,
		BaselineMean:  absentMean,
		PValue:        p,
		Strength:      x.strength(effect, len(present)),
		Detail:        f.detail,
	}, true
}

func (x *Extractor) strength(effect float64, support int) core.Strength {
	e := math.Abs(effect)
	switch {
	case e >= x.cfg.StrongEffect && support >= x.cfg.StrongSupport:
		return core.Strong
	case e >= x.cfg.ModerateEffect && support >= x.cfg.ModerateSupport:
		return core.Moderate
	default:
		return core.Weak
	}
}

// rank orders by strength, then support, then absolute effect, then feature name.
func (x *Extractor) rank(in []core.Insight) []core.Insight {
	slices.SortStableFunc(in, func(a, b core.Insight) int {
		if c := cmp.Compare(b.Strength, a.Strength); c != 0 {
			return c
		}
		if c := cmp.Compare(b.SupportCount, a.SupportCount); c != 0 {
			return c
		}
		if c := cmp.Compare(math.Abs(b.EffectSize), math.Abs(a.EffectSize)); c != 0 {
			return c
		}
		return cmp.Compare(a.Feature, b.Feature)
	})
	return in
}

// welchPValue is the two-sided p-value of Welch's unequal-variance t-test.
func welchPValue(a, b []float64) float64 {
	ma, va := stat.MeanVariance(a, nil)
	mb, vb := stat.MeanVariance(b, nil)
	na, nb := float64(len(a)), float64(len(b))
	sa, sb := va/na, vb/nb
	se2 := sa + sb
	if se2 == 0 {
		if ma == mb {
			return 1
		}
		return 0
	}
	t := (ma - mb) / math.Sqrt(se2)
	df := se2 * se2 / (sa*sa/(na-1) + sb*sb/(nb-1))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.Survival(math.Abs(t))
}
