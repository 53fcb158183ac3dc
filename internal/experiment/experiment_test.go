package experiment_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/dyadsim/internal/config"
	"github.com/san-kum/dyadsim/internal/dynamo"
	"github.com/san-kum/dyadsim/internal/experiment"
	"github.com/san-kum/dyadsim/internal/participant"
	"github.com/san-kum/dyadsim/internal/perspective"
	"github.com/san-kum/dyadsim/internal/role"
	"github.com/san-kum/dyadsim/internal/task"
)

type memRecorder struct {
	header []string
	rows   []task.Row
	closed bool
}

func (m *memRecorder) Begin(_ string, header []string) error { m.header = header; return nil }
func (m *memRecorder) Record(r task.Row) error               { m.rows = append(m.rows, r); return nil }
func (m *memRecorder) Close() error                          { m.closed = true; return nil }

type memSink struct {
	opened []string
	recs   map[string]*memRecorder
}

func newMemSink() *memSink { return &memSink{recs: make(map[string]*memRecorder)} }

func (s *memSink) Open(t *task.Task) (task.Recorder, error) {
	s.opened = append(s.opened, t.Name())
	r := &memRecorder{}
	s.recs[t.Name()] = r
	return r, nil
}

type failingSink struct{}

func (failingSink) Open(*task.Task) (task.Recorder, error) { return nil, errors.New("disk gone") }

type breakable struct {
	*participant.Static
	fault error
}

func (b *breakable) Fault() error { return b.fault }

// handleTask is a task with one handle per role and a fixed duration.
func handleTask(name string, duration float64, roles int) *task.Task {
	t := task.New(name, 0.1, task.WithDuration(duration))
	for i := 0; i < roles; i++ {
		h := dynamo.NewEntity(name+"_handle"+string(rune('a'+i)), 0)
		t.AddEntity(h)
		t.AddRole(role.New(h, perspective.Identity()))
	}
	return t
}

func statics(names ...string) []role.Participant {
	ps := make([]role.Participant, len(names))
	for i, n := range names {
		ps[i] = participant.NewStatic(n, 0)
	}
	return ps
}

var _ = Describe("Experiment", func() {
	Describe("trial advance", func() {
		var (
			sink   *memSink
			first  *task.Task
			second *task.Task
			exp    *experiment.Experiment
		)

		BeforeEach(func() {
			sink = newMemSink()
			first = handleTask("first", 1.0, 1)
			second = handleTask("second", 1.0, 1)
			var err error
			exp, err = experiment.New("advance",
				[]experiment.Trial{{first}, {second}},
				statics("p1"),
				experiment.WithSink(sink))
			Expect(err).NotTo(HaveOccurred())
		})

		It("completes the first trial after ten steps and starts the second", func() {
			for i := 0; i < 9; i++ {
				Expect(exp.Step(0.1)).To(Succeed())
			}
			Expect(first.Status()).To(Equal(task.Running))
			Expect(exp.ActiveIndex()).To(Equal(0))

			Expect(exp.Step(0.1)).To(Succeed())
			Expect(first.Status()).To(Equal(task.Completed))
			Expect(sink.recs["first"].closed).To(BeTrue())
			Expect(sink.recs["first"].rows).To(HaveLen(10))
			Expect(exp.ActiveIndex()).To(Equal(1))
			Expect(sink.opened).To(Equal([]string{"first", "second"}))
			Expect(second.Status()).To(Equal(task.Waiting))

			Expect(exp.Step(0.1)).To(Succeed())
			Expect(second.Status()).To(Equal(task.Running))
			Expect(sink.recs["second"].rows[0].ExperimentTime).To(BeNumerically("~", 1.1, 1e-9))
			Expect(sink.recs["second"].rows[0].TaskTime).To(BeNumerically("~", 0.1, 1e-9))
		})

		It("runs the completion hook once and refuses further steps", func() {
			calls := 0
			exp, err := experiment.New("hooked",
				[]experiment.Trial{{handleTask("a", 0.2, 1)}, {handleTask("b", 0.2, 1)}},
				statics("p1"),
				experiment.OnComplete(func(e *experiment.Experiment) { calls++ }))
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 4; i++ {
				Expect(exp.Step(0.1)).To(Succeed())
			}
			Expect(exp.Done()).To(BeTrue())
			Expect(calls).To(Equal(1))
			Expect(exp.Active()).To(BeNil())
			Expect(exp.Step(0.1)).To(MatchError(experiment.ErrExperimentDone))
			Expect(calls).To(Equal(1))

			results := exp.Results()
			Expect(results).To(HaveLen(2))
			Expect(results[0].Task).To(Equal("a"))
			Expect(results[0].Status).To(Equal("COMPLETED"))
			Expect(results[1].Trial).To(Equal(1))
		})
	})

	Describe("lockstep trials", func() {
		It("waits for every task of the trial", func() {
			short := handleTask("short", 0.5, 1)
			long := handleTask("long", 1.0, 1)
			exp, err := experiment.New("lockstep",
				[]experiment.Trial{{short, long}, {handleTask("after", 1, 0)}},
				statics("p1", "p2"))
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 9; i++ {
				Expect(exp.Step(0.1)).To(Succeed())
			}
			Expect(short.Status()).To(Equal(task.Completed))
			Expect(exp.ActiveIndex()).To(Equal(0))

			Expect(exp.Step(0.1)).To(Succeed())
			Expect(exp.ActiveIndex()).To(Equal(1))
		})
	})

	Describe("participant assignment", func() {
		It("hands out participants in role order and recomputes per trial", func() {
			a := handleTask("a", 0.1, 2)
			b := handleTask("b", 0.1, 1)
			c := handleTask("c", 0.1, 1)
			ps := statics("p1", "p2", "p3")
			exp, err := experiment.New("assign", []experiment.Trial{{a, b}, {c}}, ps)
			Expect(err).NotTo(HaveOccurred())

			Expect(exp.Start()).To(Succeed())
			Expect(a.Roles()[0].Participant()).To(BeIdenticalTo(ps[0]))
			Expect(a.Roles()[1].Participant()).To(BeIdenticalTo(ps[1]))
			Expect(b.Roles()[0].Participant()).To(BeIdenticalTo(ps[2]))

			Expect(exp.Step(0.1)).To(Succeed())
			Expect(c.Roles()[0].Participant()).To(BeIdenticalTo(ps[0]))
		})
	})

	Describe("validation", func() {
		It("rejects an empty procedure", func() {
			_, err := experiment.New("empty", nil, nil)
			Expect(err).To(MatchError(experiment.ErrEmptyProcedure))
		})

		It("rejects an empty trial", func() {
			_, err := experiment.New("empty", []experiment.Trial{{}}, nil)
			Expect(errors.Is(err, experiment.ErrEmptyTrial)).To(BeTrue())
		})

		It("rejects a trial with more roles than participants", func() {
			_, err := experiment.New("crowded",
				[]experiment.Trial{{handleTask("a", 1, 1)}, {handleTask("b", 1, 2)}},
				statics("p1"))
			Expect(errors.Is(err, experiment.ErrNotEnoughParticipants)).To(BeTrue())
		})

		It("rejects duplicate task names", func() {
			_, err := experiment.New("dup",
				[]experiment.Trial{{handleTask("a", 1, 0)}, {handleTask("a", 1, 0)}}, nil)
			Expect(errors.Is(err, experiment.ErrDuplicateTask)).To(BeTrue())
		})

		It("reports task configuration errors", func() {
			_, err := experiment.New("bad", []experiment.Trial{{task.New("bad", 0)}}, nil)
			Expect(errors.Is(err, dynamo.ErrInvalidTimestep)).To(BeTrue())
		})
	})

	Describe("failures", func() {
		It("stops on a participant fault and closes the streams", func() {
			sink := newMemSink()
			p := &breakable{Static: participant.NewStatic("p1", 0)}
			var hookErr error
			exp, err := experiment.New("faulty",
				[]experiment.Trial{{handleTask("a", 1, 1)}, {handleTask("b", 1, 1)}},
				[]role.Participant{p},
				experiment.WithSink(sink),
				experiment.OnComplete(func(e *experiment.Experiment) { hookErr = e.Err() }))
			Expect(err).NotTo(HaveOccurred())

			Expect(exp.Step(0.1)).To(Succeed())
			p.fault = errors.New("unplugged")
			err = exp.Step(0.1)
			Expect(errors.Is(err, dynamo.ErrParticipantFault)).To(BeTrue())

			var te *dynamo.TickError
			Expect(errors.As(err, &te)).To(BeTrue())
			Expect(te.Task).To(Equal("a"))

			Expect(exp.Done()).To(BeTrue())
			Expect(exp.Err()).To(MatchError(err))
			Expect(hookErr).To(HaveOccurred())
			Expect(sink.recs["a"].closed).To(BeTrue())
			Expect(exp.Results()[0].Status).To(Equal("FAILED"))
			Expect(exp.Step(0.1)).To(MatchError(err))
		})

		It("stops when a stream cannot be opened", func() {
			exp, err := experiment.New("nosink",
				[]experiment.Trial{{handleTask("a", 1, 0)}}, nil,
				experiment.WithSink(failingSink{}))
			Expect(err).NotTo(HaveOccurred())
			Expect(exp.Step(0.1)).To(MatchError(ContainSubstring("disk gone")))
			Expect(exp.Done()).To(BeTrue())
		})
	})

	Describe("Run", func() {
		It("runs free when no clock is given", func() {
			exp, err := experiment.New("free",
				[]experiment.Trial{{handleTask("a", 1, 0)}, {handleTask("b", 0.5, 0)}}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(exp.Run(context.Background(), nil)).To(Succeed())
			Expect(exp.Ticks()).To(Equal(15))
			Expect(exp.Time()).To(BeNumerically("~", 1.5, 1e-9))
		})

		It("waits for the clock", func() {
			exp, err := experiment.New("paced",
				[]experiment.Trial{{handleTask("a", 0.3, 0)}}, nil)
			Expect(err).NotTo(HaveOccurred())

			tick := make(chan time.Time, 3)
			for i := 0; i < 3; i++ {
				tick <- time.Now()
			}
			Expect(exp.Run(context.Background(), tick)).To(Succeed())
			Expect(exp.Ticks()).To(Equal(3))
		})

		It("returns the context error between ticks", func() {
			exp, err := experiment.New("cancelled",
				[]experiment.Trial{{handleTask("a", 10, 0)}}, nil)
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			Expect(exp.Run(ctx, make(chan time.Time))).To(MatchError(context.Canceled))
			Expect(exp.Ticks()).To(Equal(0))
		})
	})

	Describe("Build", func() {
		It("builds and runs the two-trials preset", func() {
			exp, err := experiment.Build(config.GetPreset("two-trials"), experiment.NewRegistry(), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(exp.Trials()).To(HaveLen(2))
			Expect(exp.Timestep()).To(Equal(0.1))
			Expect(exp.Run(context.Background(), nil)).To(Succeed())
			Expect(exp.Ticks()).To(Equal(20))
		})

		It("builds every preset", func() {
			reg := experiment.NewRegistry()
			for _, name := range config.ListPresets() {
				_, err := experiment.Build(config.GetPreset(name), reg, nil)
				Expect(err).NotTo(HaveOccurred(), name)
			}
		})

		It("drives the solo slider with a bot", func() {
			cfg := config.GetPreset("solo-slider")
			cfg.Timestep = 0.02
			exp, err := experiment.Build(cfg, experiment.NewRegistry(), nil)
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			Expect(exp.Run(ctx, nil)).To(Succeed())
			Expect(exp.Results()).To(HaveLen(4))
			for _, r := range exp.Results() {
				Expect(r.Status).To(Equal("COMPLETED"))
			}
		})

		It("is reproducible for a seed", func() {
			trajectoryAt := func(seed int64) float64 {
				cfg := config.GetPreset("dyad-slider")
				cfg.Seed = seed
				exp, err := experiment.Build(cfg, experiment.NewRegistry(), nil)
				Expect(err).NotTo(HaveOccurred())
				return exp.Trials()[2][0].Trajectory("sos").Signal().At(12.5)
			}
			Expect(trajectoryAt(5)).To(Equal(trajectoryAt(5)))
			Expect(trajectoryAt(5)).NotTo(Equal(trajectoryAt(6)))
		})

		It("reports unknown templates and participant kinds", func() {
			reg := experiment.NewRegistry()
			cfg := config.GetPreset("two-trials")
			cfg.Procedure[0][0].Template = "juggling"
			_, err := experiment.Build(cfg, reg, nil)
			Expect(err).To(MatchError(ContainSubstring("unknown template: juggling")))

			_, err = reg.GetParticipant(config.ParticipantConfig{Name: "x", Kind: "ghost"}, 0.1, nil)
			Expect(err).To(MatchError(ContainSubstring("unknown participant kind")))
		})

		It("lists templates in order", func() {
			names := experiment.NewRegistry().ListTemplates()
			Expect(names).To(ContainElements("blank", "center", "custom", "dyad-asym", "spring-pair"))
			Expect(names[0]).To(Equal("blank"))
		})
	})
})
