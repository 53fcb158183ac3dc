// Package metrics summarises a task run from the views it produces.
package metrics

import "github.com/san-kum/dyadsim/internal/dynamo"

// Metric observes one view per tick, taken after the entities have stepped.
type Metric interface {
	Name() string
	Observe(v dynamo.View)
	Value() float64
	Reset()
}

// Summary collects the current values of a set of metrics by name.
func Summary(ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
