package experiment_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/dyadsim/internal/config"
	"github.com/san-kum/dyadsim/internal/experiment"
)

var _ = Describe("Ensemble", func() {
	It("runs every seed to completion", func() {
		var (
			mu    sync.Mutex
			seeds []int64
		)
		cfg := config.GetPreset("two-trials")
		cfg.Seed = 10
		exps, err := experiment.NewEnsemble(cfg, experiment.NewRegistry(), 3).
			WithOptions(func(idx int, c *config.Config) ([]experiment.Option, error) {
				mu.Lock()
				defer mu.Unlock()
				seeds = append(seeds, c.Seed)
				return nil, nil
			}).
			Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		Expect(exps).To(HaveLen(3))
		for _, e := range exps {
			Expect(e.Done()).To(BeTrue())
			Expect(e.Ticks()).To(Equal(20))
		}
		Expect(seeds).To(ConsistOf(int64(10), int64(11), int64(12)))
		Expect(cfg.Seed).To(Equal(int64(10)))
	})

	It("reports the runs that could not start", func() {
		boom := errors.New("no disk")
		exps, err := experiment.NewEnsemble(config.GetPreset("two-trials"), experiment.NewRegistry(), 2).
			WithOptions(func(idx int, c *config.Config) ([]experiment.Option, error) {
				if idx == 1 {
					return nil, boom
				}
				return nil, nil
			}).
			Run(context.Background())
		Expect(errors.Is(err, boom)).To(BeTrue())
		Expect(exps[0]).NotTo(BeNil())
		Expect(exps[0].Done()).To(BeTrue())
		Expect(exps[1]).To(BeNil())
	})
})
