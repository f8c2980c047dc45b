package feeds

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/rendis/nodeflow/pkg/schema"
)

// Source kinds for generated input values.
const (
	SourceConstant = "constant"
	SourceCounter  = "counter"
	SourceRandom   = "random"
	SourceSine     = "sine"
)

// SourceSpec describes a builtin value generator. Fields are meaningful
// per type: Value for constant, Start/Step for counter, Min/Max for
// random, Amplitude/Period for sine.
type SourceSpec struct {
	Type      string  `json:"type"`
	Value     float64 `json:"value,omitempty"`
	Start     float64 `json:"start,omitempty"`
	Step      float64 `json:"step,omitempty"`
	Min       float64 `json:"min,omitempty"`
	Max       float64 `json:"max,omitempty"`
	Amplitude float64 `json:"amplitude,omitempty"`
	Period    string  `json:"period,omitempty"`
}

// Source produces the next value for a feed tick.
type Source interface {
	Next(now time.Time) float64
}

// newSource builds the generator for a spec. Sources carry their own
// state (counters advance per tick) so each feed needs its own instance.
func newSource(spec SourceSpec) (Source, error) {
	switch spec.Type {
	case SourceConstant:
		return &constantSource{value: spec.Value}, nil
	case SourceCounter:
		step := spec.Step
		if step == 0 {
			step = 1
		}
		return &counterSource{next: spec.Start, step: step}, nil
	case SourceRandom:
		if spec.Max <= spec.Min {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"random source requires max > min, got [%g, %g]", spec.Min, spec.Max)
		}
		return &randomSource{min: spec.Min, max: spec.Max}, nil
	case SourceSine:
		amplitude := spec.Amplitude
		if amplitude == 0 {
			amplitude = 1
		}
		period := time.Minute
		if spec.Period != "" {
			d, err := time.ParseDuration(spec.Period)
			if err != nil || d <= 0 {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"invalid sine period %q", spec.Period)
			}
			period = d
		}
		return &sineSource{amplitude: amplitude, period: period}, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown source type %q", spec.Type)
	}
}

type constantSource struct {
	value float64
}

func (s *constantSource) Next(time.Time) float64 {
	return s.value
}

type counterSource struct {
	next float64
	step float64
}

func (s *counterSource) Next(time.Time) float64 {
	v := s.next
	s.next += s.step
	return v
}

type randomSource struct {
	min float64
	max float64
}

func (s *randomSource) Next(time.Time) float64 {
	return s.min + rand.Float64()*(s.max-s.min)
}

type sineSource struct {
	amplitude float64
	period    time.Duration
}

func (s *sineSource) Next(now time.Time) float64 {
	phase := float64(now.UnixNano()) / float64(s.period.Nanoseconds())
	return s.amplitude * math.Sin(2*math.Pi*phase)
}
