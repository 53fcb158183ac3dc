// Package optim searches experiment parameters for the best task metric.
package optim

import (
	"context"
	"errors"
	"math"

	"github.com/san-kum/dyadsim/internal/experiment"
)

var ErrNoCandidate = errors.New("optim: no parameter set produced the metric")

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Candidate is one evaluated point of the grid.
type Candidate struct {
	Params map[string]float64
	Score  float64
	Err    error
}

// Search runs an experiment for every point of the grid and returns the
// parameters with the lowest mean value of metricName over all task
// results that report it. Every evaluated candidate is returned as well.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (map[string]float64, float64, []Candidate, error) {

	best := math.Inf(1)
	var bestParams map[string]float64
	var tried []Candidate

	err := g.searchRecursive(ctx, 0, make(map[string]float64), buildExperiment, metricName, &best, &bestParams, &tried)
	if err != nil {
		return nil, 0, tried, err
	}
	if bestParams == nil {
		return nil, 0, tried, ErrNoCandidate
	}
	return bestParams, best, tried, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	buildExperiment func(map[string]float64) (*experiment.Experiment, error),
	metricName string,
	best *float64,
	bestParams *map[string]float64,
	tried *[]Candidate,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if depth == len(g.paramNames) {
		c := Candidate{Params: current, Score: math.NaN()}
		defer func() { *tried = append(*tried, c) }()

		exp, err := buildExperiment(current)
		if err != nil {
			c.Err = err
			return nil
		}
		if err := exp.Run(ctx, nil); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Err = err
			return nil
		}

		val, ok := MeanMetric(exp.Results(), metricName)
		if !ok {
			return nil
		}
		c.Score = val
		if val < *best {
			*best = val
			*bestParams = make(map[string]float64)
			for k, v := range current {
				(*bestParams)[k] = v
			}
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, buildExperiment, metricName, best, bestParams, tried); err != nil {
			return err
		}
	}
	return nil
}

// MeanMetric averages one metric over the results that report it.
func MeanMetric(results []experiment.Result, name string) (float64, bool) {
	sum, n := 0.0, 0
	for _, r := range results {
		if v, ok := r.Metrics[name]; ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
