package storage

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/san-kum/dyadsim/internal/config"
	"github.com/san-kum/dyadsim/internal/experiment"
	"github.com/san-kum/dyadsim/internal/task"
)

func springConfig() *config.Config {
	cfg := config.GetPreset("spring-pair")
	cfg.Procedure[0][0].Duration = 1
	return cfg
}

func runInto(t *testing.T, s *Store, cfg *config.Config, sink string) *Run {
	t.Helper()
	cfg.Sink = sink
	run, err := s.Create(cfg.Name)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	snk, err := run.Sink(sink)
	if err != nil {
		t.Fatalf("sink failed: %v", err)
	}
	opts := []experiment.Option{run.OnComplete(cfg)}
	if snk != nil {
		opts = append(opts, experiment.WithSink(snk))
	}
	exp, err := experiment.Build(cfg, experiment.NewRegistry(), nil, opts...)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if err := exp.Run(context.Background(), nil); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if err := run.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := run.Err(); err != nil {
		t.Fatalf("metadata failed: %v", err)
	}
	return run
}

func TestCreateUniqueRuns(t *testing.T) {
	s := New(t.TempDir())
	a, err := s.Create("exp")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	b, err := s.Create("exp")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if a.ID == b.ID {
		t.Errorf("expected distinct run ids, got %s twice", a.ID)
	}
	if filepath.Dir(a.Dir) != s.BaseDir() {
		t.Errorf("run dir %s not under %s", a.Dir, s.BaseDir())
	}
}

func TestCSVRun(t *testing.T) {
	s := New(t.TempDir())
	cfg := springConfig()
	run := runInto(t, s, cfg, "csv")

	runs, err := s.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Fatalf("expected one run %s, got %+v", run.ID, runs)
	}

	meta, err := s.Load(run.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Seed != cfg.Seed || meta.Timestep != cfg.Timestep {
		t.Errorf("metadata seed/timestep mismatch: %+v", meta)
	}
	if meta.Ticks != 120 {
		t.Errorf("expected 120 ticks, got %d", meta.Ticks)
	}
	if len(meta.Results) != 1 || meta.Results[0].Status != "COMPLETED" {
		t.Errorf("unexpected results: %+v", meta.Results)
	}
	if _, ok := meta.Results[0].Metrics["path_length_left"]; !ok {
		t.Errorf("expected path length metric, got %v", meta.Results[0].Metrics)
	}
	if meta.Params["spring-pair"]["template"] != "spring-pair" {
		t.Errorf("expected template in params, got %v", meta.Params)
	}

	tbl, err := s.LoadRows(run.ID, "spring-pair")
	if err != nil {
		t.Fatalf("load rows failed: %v", err)
	}
	if len(tbl.Rows) != 120 {
		t.Fatalf("expected 120 rows, got %d", len(tbl.Rows))
	}
	for i, col := range task.MetaColumns {
		if tbl.Header[i] != col {
			t.Errorf("header[%d] = %s, want %s", i, tbl.Header[i], col)
		}
	}
	if last := tbl.Rows[len(tbl.Rows)-1]; last.Status != task.Completed {
		t.Errorf("expected last row COMPLETED, got %s", last.Status)
	}

	times, err := tbl.Column("tasktime")
	if err != nil {
		t.Fatalf("column failed: %v", err)
	}
	if math.Abs(times[len(times)-1]-1) > 1e-9 {
		t.Errorf("expected last task time 1, got %f", times[len(times)-1])
	}

	left, err := tbl.Column("object_left_pos")
	if err != nil {
		t.Fatalf("column failed: %v", err)
	}
	if left[0] != -1 {
		t.Errorf("expected first left position -1, got %f", left[0])
	}
	if left[len(left)-1] <= -1 {
		t.Errorf("expected left mass to move right, got %f", left[len(left)-1])
	}

	if _, err := tbl.Column("taskstate"); err == nil {
		t.Error("expected error for non-numeric column")
	}
	if _, err := tbl.Column("missing"); err == nil {
		t.Error("expected error for missing column")
	}
}

func TestSQLiteMatchesCSV(t *testing.T) {
	s := New(t.TempDir())
	csvRun := runInto(t, s, springConfig(), "csv")
	dbRun := runInto(t, s, springConfig(), "sqlite")

	want, err := s.LoadRows(csvRun.ID, "spring-pair")
	if err != nil {
		t.Fatalf("load csv rows failed: %v", err)
	}
	got, err := s.LoadRows(dbRun.ID, "spring-pair")
	if err != nil {
		t.Fatalf("load sqlite rows failed: %v", err)
	}

	if len(got.Header) != len(want.Header) {
		t.Fatalf("header mismatch: %v vs %v", got.Header, want.Header)
	}
	if len(got.Rows) != len(want.Rows) {
		t.Fatalf("row count mismatch: %d vs %d", len(got.Rows), len(want.Rows))
	}
	for i := range want.Rows {
		w, g := want.Rows[i], got.Rows[i]
		if g.Status != w.Status || g.TaskTime != w.TaskTime || len(g.Values) != len(w.Values) {
			t.Fatalf("row %d mismatch: %+v vs %+v", i, g, w)
		}
		for j := range w.Values {
			if g.Values[j] != w.Values[j] {
				t.Fatalf("row %d value %d: %v vs %v", i, j, g.Values[j], w.Values[j])
			}
		}
	}

	meta, err := s.Load(dbRun.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Sink != "sqlite" {
		t.Errorf("expected sqlite sink in metadata, got %q", meta.Sink)
	}
}

func TestSQLiteKeepsNonFinite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.db")
	sink, err := NewSQLiteSink(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer sink.Close()

	rec := &sqliteRecorder{db: sink.db, task: "broken"}
	if err := rec.Begin("broken", []string{"task", "taskstate", "tasktime", "experimenttime", "x"}); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := rec.Record(task.Row{Task: "broken", Status: task.Failed, TaskTime: 0.5, Values: []float64{math.NaN()}}); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	tbl, err := readSQLite(path, "broken")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(tbl.Rows) != 1 || !math.IsNaN(tbl.Rows[0].Values[0]) || tbl.Rows[0].Status != task.Failed {
		t.Errorf("unexpected rows: %+v", tbl.Rows)
	}
}

func TestRecordBeforeBegin(t *testing.T) {
	rec := &csvRecorder{path: filepath.Join(t.TempDir(), "x.csv")}
	if err := rec.Record(task.Row{Task: "x"}); err == nil {
		t.Error("expected error recording before begin")
	}
	if err := rec.Close(); err != nil {
		t.Errorf("close of unopened stream: %v", err)
	}
}

func TestSinkKinds(t *testing.T) {
	s := New(t.TempDir())
	run, err := s.Create("kinds")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if snk, err := run.Sink("none"); err != nil || snk != nil {
		t.Errorf("expected no sink for none, got %v, %v", snk, err)
	}
	if _, err := run.Sink("tape"); err == nil {
		t.Error("expected error for unknown sink")
	}
}

func TestMissingRun(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.Load("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if _, err := s.LoadRows("nope", "task"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}

	runs, err := New(filepath.Join(t.TempDir(), "absent")).List()
	if err != nil || len(runs) != 0 {
		t.Errorf("expected empty list, got %v, %v", runs, err)
	}
}
