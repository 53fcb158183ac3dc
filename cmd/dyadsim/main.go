package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/dyadsim/internal/config"
	"github.com/san-kum/dyadsim/internal/experiment"
	"github.com/san-kum/dyadsim/internal/logging"
	"github.com/san-kum/dyadsim/internal/optim"
	"github.com/san-kum/dyadsim/internal/participant"
	"github.com/san-kum/dyadsim/internal/role"
	"github.com/san-kum/dyadsim/internal/storage"
	"github.com/san-kum/dyadsim/internal/tui"
)

var (
	dataDir    string
	logLevel   string
	configFile string
	preset     string
	seed       int64
	sink       string
	realtime   bool
	watchName  string
	columns    []string
	asJSON     bool
	initPreset string
	repeat     int
	grid       []string
	metric     string
)

// main registers the dyadsim commands and executes the root command,
// exiting with status 1 on error.
func main() {
	rootCmd := &cobra.Command{
		Use:           "dyadsim",
		Short:         "coupled-handle interaction experiments",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", config.DefaultDataDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level (info, debug, trace)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run an experiment with scripted participants",
		Args:  cobra.NoArgs,
		RunE:  runExperiment,
	}
	experimentFlags(runCmd)
	runCmd.Flags().BoolVar(&realtime, "realtime", false, "pace ticks to the wall clock")
	runCmd.Flags().IntVar(&repeat, "repeat", 1, "run this many consecutive seeds in parallel (free-running)")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "run an experiment in the terminal, following one participant",
		Args:  cobra.NoArgs,
		RunE:  watchExperiment,
	}
	experimentFlags(watchCmd)
	watchCmd.Flags().StringVar(&watchName, "participant", "", "participant to follow (default: first manual, else first)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show run metadata and task results",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "print metadata as JSON")

	plotCmd := &cobra.Command{
		Use:   "plot [run_id] [task]",
		Short: "plot recorded columns of a task",
		Args:  cobra.ExactArgs(2),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&columns, "column", nil, "columns to plot (default: positions and references)")

	presetsCmd := &cobra.Command{
		Use:   "presets [name]",
		Short: "list presets, or print one as yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showPresets,
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "write an experiment file to start from",
		Args:  cobra.ExactArgs(1),
		RunE:  initConfig,
	}
	initCmd.Flags().StringVar(&initPreset, "preset", "dyad-slider", "preset to write")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search bot parameters for the lowest task metric",
		Args:  cobra.NoArgs,
		RunE:  tuneBots,
	}
	experimentFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&grid, "grid", nil, "bot parameter values, e.g. kp=20,40,80 (repeatable)")
	tuneCmd.Flags().StringVar(&metric, "metric", "tracking_error_cursor", "metric to minimise")

	rootCmd.AddCommand(runCmd, watchCmd, listCmd, showCmd, plotCmd, presetsCmd, initCmd, tuneCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func experimentFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "experiment file (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use a preset experiment")
	cmd.Flags().Int64Var(&seed, "seed", config.DefaultSeed, "random seed")
	cmd.Flags().StringVar(&sink, "sink", config.DefaultSink, "row sink (csv, sqlite, none)")
}

// loadConfig reads the preset or file and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	case preset != "":
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	default:
		return nil, fmt.Errorf("need --config or --preset (available presets: %v)", config.ListPresets())
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("sink") {
		cfg.Sink = sink
	}
	if flags.Changed("realtime") {
		cfg.Realtime = realtime
	}
	if cmd.Flags().Changed("data-dir") || cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if cmd.Flags().Changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = logLevel
	}
	return cfg, cfg.Validate()
}

type session struct {
	cfg    *config.Config
	run    *storage.Run
	exp    *experiment.Experiment
	events *logging.EventLog
}

func (s *session) close() error {
	s.events.Close()
	return s.run.Close()
}

func openSession(cmd *cobra.Command, logOut *os.File) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(cfg.LogLevel, logOut)

	st := storage.New(cfg.DataDir)
	run, err := st.Create(cfg.Name)
	if err != nil {
		return nil, err
	}
	snk, err := run.Sink(cfg.Sink)
	if err != nil {
		return nil, err
	}
	events := logging.NewEventLog(run.Dir, cfg.LogLevel)

	opts := []experiment.Option{experiment.WithEventLog(events), run.OnComplete(cfg)}
	if snk != nil {
		opts = append(opts, experiment.WithSink(snk))
	}
	exp, err := experiment.Build(cfg, experiment.NewRegistry(), logger, opts...)
	if err != nil {
		events.Close()
		run.Close()
		return nil, err
	}
	return &session{cfg: cfg, run: run, exp: exp, events: events}, nil
}

func runExperiment(cmd *cobra.Command, args []string) error {
	if repeat > 1 {
		return runEnsemble(cmd)
	}
	s, err := openSession(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var tick <-chan time.Time
	if s.cfg.Realtime {
		ticker := time.NewTicker(time.Duration(s.exp.Timestep() * float64(time.Second)))
		defer ticker.Stop()
		tick = ticker.C
	}

	fmt.Printf("running %s (%d trials)...\n", s.exp.Name(), len(s.exp.Trials()))
	start := time.Now()
	runErr := s.exp.Run(ctx, tick)

	fmt.Printf("completed in %v\n", time.Since(start))
	fmt.Printf("run id: %s\n", s.run.ID)
	fmt.Printf("ticks: %d (%.2fs)\n\n", s.exp.Ticks(), s.exp.Time())
	printResults(s.exp.Results())

	if err := s.run.Err(); err != nil {
		return err
	}
	return runErr
}

func runEnsemble(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.LogLevel, os.Stderr)
	st := storage.New(cfg.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runs := make([]*storage.Run, repeat)
	defer func() {
		for _, r := range runs {
			if r != nil {
				r.Close()
			}
		}
	}()

	fmt.Printf("running %s for %d seeds from %d...\n", cfg.Name, repeat, cfg.Seed)
	start := time.Now()
	exps, runErr := experiment.NewEnsemble(cfg, experiment.NewRegistry(), repeat).
		WithLogger(logger).
		WithOptions(func(idx int, c *config.Config) ([]experiment.Option, error) {
			run, err := st.Create(fmt.Sprintf("%s-seed%d", c.Name, c.Seed))
			if err != nil {
				return nil, err
			}
			runs[idx] = run
			snk, err := run.Sink(c.Sink)
			if err != nil {
				return nil, err
			}
			opts := []experiment.Option{run.OnComplete(c)}
			if snk != nil {
				opts = append(opts, experiment.WithSink(snk))
			}
			return opts, nil
		}).
		Run(ctx)
	fmt.Printf("completed in %v\n\n", time.Since(start))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEED\tRUN\tTICKS\tSTATUS")
	for i, exp := range exps {
		if exp == nil || runs[i] == nil {
			continue
		}
		status := "ok"
		if exp.Err() != nil {
			status = "failed"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", cfg.Seed+int64(i), runs[i].ID, exp.Ticks(), status)
	}
	w.Flush()
	return runErr
}

func tuneBots(cmd *cobra.Command, args []string) error {
	names, ranges, err := parseGrid(grid)
	if err != nil {
		return err
	}
	if _, err := loadConfig(cmd); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reg := experiment.NewRegistry()
	build := func(params map[string]float64) (*experiment.Experiment, error) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		for i := range cfg.Participants {
			pc := &cfg.Participants[i]
			if pc.Kind != "bot" {
				continue
			}
			merged := make(map[string]float64, len(pc.Params)+len(params))
			for k, v := range pc.Params {
				merged[k] = v
			}
			for k, v := range params {
				merged[k] = v
			}
			pc.Params = merged
		}
		return experiment.Build(cfg, reg, nil)
	}

	best, score, tried, err := optim.NewGridSearch(names, ranges).Search(ctx, build, metric)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PARAMS\t%s\n", strings.ToUpper(metric))
	for _, c := range tried {
		val := fmt.Sprintf("%.6f", c.Score)
		if c.Err != nil {
			val = "error: " + c.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\n", formatMetrics(c.Params), val)
	}
	w.Flush()
	if err != nil {
		return err
	}
	fmt.Printf("\nbest: %s (%s=%.6f)\n", formatMetrics(best), metric, score)
	return nil
}

func parseGrid(specs []string) ([]string, [][]float64, error) {
	if len(specs) == 0 {
		return nil, nil, fmt.Errorf("need at least one --grid name=v1,v2")
	}
	names := make([]string, 0, len(specs))
	ranges := make([][]float64, 0, len(specs))
	for _, spec := range specs {
		name, list, ok := strings.Cut(spec, "=")
		if !ok || name == "" || list == "" {
			return nil, nil, fmt.Errorf("bad grid %q: want name=v1,v2", spec)
		}
		var vals []float64
		for _, f := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("bad grid %q: %w", spec, err)
			}
			vals = append(vals, v)
		}
		names = append(names, name)
		ranges = append(ranges, vals)
	}
	return names, ranges, nil
}

func watchExperiment(cmd *cobra.Command, args []string) error {
	logFile, err := os.CreateTemp("", "dyadsim-*.log")
	if err != nil {
		return err
	}
	defer logFile.Close()

	s, err := openSession(cmd, logFile)
	if err != nil {
		return err
	}
	defer s.close()

	watch, err := pickParticipant(s.exp.Participants(), watchName)
	if err != nil {
		return err
	}
	if err := tui.Run(s.exp, watch); err != nil {
		return err
	}

	fmt.Printf("run id: %s\n", s.run.ID)
	fmt.Printf("log: %s\n\n", logFile.Name())
	printResults(s.exp.Results())
	return s.run.Err()
}

func pickParticipant(ps []role.Participant, name string) (role.Participant, error) {
	if len(ps) == 0 {
		return nil, fmt.Errorf("experiment has no participants to follow")
	}
	if name != "" {
		for _, p := range ps {
			if p.Name() == name {
				return p, nil
			}
		}
		return nil, fmt.Errorf("no participant named %q", name)
	}
	for _, p := range ps {
		if _, ok := p.(*participant.Manual); ok {
			return p, nil
		}
	}
	return ps[0], nil
}

func printResults(results []experiment.Result) {
	if len(results) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRIAL\tTASK\tSTATUS\tTICKS\tTIME\tMETRICS")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.2fs\t%s\n", r.Trial, r.Task, r.Status, r.Ticks, r.Elapsed, formatMetrics(r.Metrics))
	}
	w.Flush()
}

func formatMetrics(m map[string]float64) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%.4f", name, m[name])
	}
	return strings.Join(parts, " ")
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tTRIALS\tTICKS\tDT\tSINK\tSTATUS")

	for _, run := range runs {
		status := "ok"
		if run.Error != "" {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.4fs\t%s\t%s\n",
			run.ID,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			len(run.Trials),
			run.Ticks,
			run.Timestep,
			run.Sink,
			status,
		)
	}

	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("name: %s\n", meta.Name)
	fmt.Printf("time: %s\n", meta.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Printf("seed: %d  timestep: %.4fs  sink: %s\n", meta.Seed, meta.Timestep, meta.Sink)
	fmt.Printf("ticks: %d (%.2fs)\n", meta.Ticks, meta.Time)
	if meta.Error != "" {
		fmt.Printf("error: %s\n", meta.Error)
	}
	fmt.Println()
	printResults(meta.Results)
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID, taskName := args[0], args[1]

	st := storage.New(dataDir)
	tbl, err := st.LoadRows(runID, taskName)
	if err != nil {
		return err
	}
	if len(tbl.Rows) == 0 {
		return fmt.Errorf("no data to plot")
	}

	cols := columns
	if len(cols) == 0 {
		for _, h := range tbl.Header {
			if strings.HasSuffix(h, "_pos") || strings.HasSuffix(h, "_now") {
				cols = append(cols, h)
			}
		}
	}
	maxPlots := 6
	if len(cols) > maxPlots {
		cols = cols[:maxPlots]
	}

	fmt.Printf("run: %s\n", runID)
	fmt.Printf("task: %s\n", taskName)
	fmt.Printf("samples: %d\n\n", len(tbl.Rows))

	for _, col := range cols {
		data, err := tbl.Column(col)
		if err != nil {
			return err
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(col),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func showPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		cfg := config.GetPreset(args[0])
		if cfg == nil {
			return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTRIALS\tPARTICIPANTS\tDT")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%d\t%d\t%.4fs\n", name, len(cfg.Procedure), len(cfg.Participants), cfg.Timestep)
	}
	return w.Flush()
}

func initConfig(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	cfg := config.GetPreset(initPreset)
	if cfg == nil {
		return fmt.Errorf("unknown preset: %s (available: %v)", initPreset, config.ListPresets())
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s (from preset %s)\n", path, initPreset)
	return nil
}
