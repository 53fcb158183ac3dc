package trajectory

import (
	"fmt"
	"math"
	"math/rand"
)

// Flat is the zero signal.
type Flat struct{}

func (Flat) At(float64) float64 { return 0 }

// Constant holds a fixed value.
type Constant float64

func (c Constant) At(float64) float64 { return float64(c) }

// Component is one sine term: Amplitude * sin(Frequency * pi * (t + Phase)).
type Component struct {
	Amplitude float64 `json:"amplitude" yaml:"amplitude"`
	Frequency float64 `json:"frequency" yaml:"frequency"`
	Phase     float64 `json:"phase" yaml:"phase"`
}

// SumOfSines is a reproducible pseudo-random reference. It is zero until
// ZeroStart and then ramps in linearly over SoftStart seconds.
type SumOfSines struct {
	Components []Component `json:"components" yaml:"components"`
	ZeroStart  float64     `json:"zero_start" yaml:"zero_start"`
	SoftStart  float64     `json:"soft_start" yaml:"soft_start"`
}

func (s SumOfSines) At(t float64) float64 {
	if t <= s.ZeroStart {
		return 0
	}
	v := 0.0
	for _, c := range s.Components {
		v += c.Amplitude * math.Sin(c.Frequency*math.Pi*(t+c.Phase))
	}
	if s.SoftStart > 0 {
		v *= 1 - math.Max(s.SoftStart+s.ZeroStart-t, 0)/s.SoftStart
	}
	return v
}

func (s SumOfSines) String() string {
	return fmt.Sprintf("sos(%d components, zero_start=%.2f, soft_start=%.2f)",
		len(s.Components), s.ZeroStart, s.SoftStart)
}

// DefaultFrequencies are the tracking frequencies used by the slider tasks.
var DefaultFrequencies = []float64{1.7, 1.3, 1.1, 0.7, 0.5}

// GenerateSumOfSines draws a SumOfSines from rng. Amplitudes are
// proportional to 1/frequency and sum to one; the frequency order is
// shuffled and each phase is uniform in [0, 2pi).
func GenerateSumOfSines(rng *rand.Rand, frequencies []float64, zeroStart, softStart float64) SumOfSines {
	amps := make([]float64, len(frequencies))
	total := 0.0
	for i, f := range frequencies {
		amps[i] = 1 / f
		total += amps[i]
	}

	order := rng.Perm(len(frequencies))
	comps := make([]Component, len(frequencies))
	for i, j := range order {
		comps[i] = Component{
			Amplitude: amps[j] / total,
			Frequency: frequencies[j],
			Phase:     rng.Float64() * 2 * math.Pi,
		}
	}

	return SumOfSines{Components: comps, ZeroStart: zeroStart, SoftStart: softStart}
}
