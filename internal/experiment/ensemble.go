package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/san-kum/dyadsim/internal/config"
)

// Ensemble runs one config under consecutive seeds, each experiment in its
// own goroutine. Experiments share nothing but the registry.
type Ensemble struct {
	cfg     *config.Config
	reg     *Registry
	numRuns int
	logger  *slog.Logger
	options func(idx int, cfg *config.Config) ([]Option, error)
}

func NewEnsemble(cfg *config.Config, reg *Registry, numRuns int) *Ensemble {
	return &Ensemble{cfg: cfg, reg: reg, numRuns: numRuns}
}

func (e *Ensemble) WithLogger(l *slog.Logger) *Ensemble {
	e.logger = l
	return e
}

// WithOptions sets a hook that supplies per-run options, such as a sink
// writing to that run's directory. It is called before the run starts,
// with the config carrying the run's seed.
func (e *Ensemble) WithOptions(fn func(idx int, cfg *config.Config) ([]Option, error)) *Ensemble {
	e.options = fn
	return e
}

// Run executes every seed to completion. The returned slice is indexed by
// run; a run that could not be built is nil. All errors are joined.
func (e *Ensemble) Run(ctx context.Context) ([]*Experiment, error) {
	exps := make([]*Experiment, e.numRuns)
	errs := make([]error, e.numRuns)

	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			cfgCopy := *e.cfg
			cfgCopy.Seed = e.cfg.Seed + int64(idx)

			var opts []Option
			if e.options != nil {
				var err error
				if opts, err = e.options(idx, &cfgCopy); err != nil {
					errs[idx] = fmt.Errorf("seed %d: %w", cfgCopy.Seed, err)
					return
				}
			}
			logger := e.logger
			if logger != nil {
				logger = logger.With("seed", cfgCopy.Seed)
			}

			exp, err := Build(&cfgCopy, e.reg, logger, opts...)
			if err != nil {
				errs[idx] = fmt.Errorf("seed %d: %w", cfgCopy.Seed, err)
				return
			}
			exps[idx] = exp
			if err := exp.Run(ctx, nil); err != nil {
				errs[idx] = fmt.Errorf("seed %d: %w", cfgCopy.Seed, err)
			}
		}(i)
	}

	wg.Wait()
	return exps, errors.Join(errs...)
}
