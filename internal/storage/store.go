// Package storage keeps experiment runs on disk: one directory per run
// holding metadata.json and the per-task rows, as CSV files or a SQLite
// database.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/dyadsim/internal/config"
	"github.com/san-kum/dyadsim/internal/experiment"
	"github.com/san-kum/dyadsim/internal/task"
)

const (
	metadataFile = "metadata.json"
	databaseFile = "rows.db"
)

var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) BaseDir() string { return s.baseDir }

type RunMetadata struct {
	ID        string                    `json:"id"`
	Name      string                    `json:"name"`
	Timestamp time.Time                 `json:"timestamp"`
	Seed      int64                     `json:"seed"`
	Timestep  float64                   `json:"timestep"`
	Sink      string                    `json:"sink"`
	Ticks     int                       `json:"ticks"`
	Time      float64                   `json:"time"`
	Trials    [][]string                `json:"trials"`
	Results   []experiment.Result       `json:"results"`
	Params    map[string]map[string]any `json:"params,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

// Create makes a fresh run directory named <name>_<timestamp>.
func (s *Store) Create(name string) (*Run, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	stamp := time.Now().Format("20060102-150405")
	id := fmt.Sprintf("%s_%s", name, stamp)
	for n := 1; ; n++ {
		err := os.Mkdir(filepath.Join(s.baseDir, id), 0755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, err
		}
		id = fmt.Sprintf("%s_%s-%d", name, stamp, n)
	}
	return &Run{ID: id, Dir: filepath.Join(s.baseDir, id), created: time.Now()}, nil
}

// List returns the metadata of every finished run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse %s metadata: %w", runID, err)
	}
	return &meta, nil
}

// LoadRows reads the rows a task recorded in a run, from CSV if present and
// from the run database otherwise.
func (s *Store) LoadRows(runID, taskName string) (*Table, error) {
	dir := filepath.Join(s.baseDir, runID)
	csvPath := filepath.Join(dir, fileName(taskName)+".csv")
	if _, err := os.Stat(csvPath); err == nil {
		return readCSV(taskName, csvPath)
	}
	dbPath := filepath.Join(dir, databaseFile)
	if _, err := os.Stat(dbPath); err == nil {
		return readSQLite(dbPath, taskName)
	}
	return nil, fmt.Errorf("%w: no rows for %s in %s", ErrRunNotFound, taskName, runID)
}

// Table is the recorded stream of one task run.
type Table struct {
	Task   string
	Header []string
	Rows   []task.Row
}

// Column returns one numeric column by header name.
func (t *Table) Column(name string) ([]float64, error) {
	idx := -1
	for i, h := range t.Header {
		if h == name {
			idx = i
			break
		}
	}
	meta := len(task.MetaColumns)
	if idx < 2 {
		return nil, fmt.Errorf("no numeric column %q in %s", name, t.Task)
	}

	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		switch {
		case idx == 2:
			out[i] = r.TaskTime
		case idx == 3:
			out[i] = r.ExperimentTime
		case idx-meta < len(r.Values):
			out[i] = r.Values[idx-meta]
		}
	}
	return out, nil
}

// Run is one run directory being written.
type Run struct {
	ID  string
	Dir string

	created time.Time
	sqlite  *SQLiteSink
	err     error
}

// SaveMetadata writes metadata.json.
func (r *Run) SaveMetadata(meta RunMetadata) error {
	f, err := os.Create(filepath.Join(r.Dir, metadataFile))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

// Metadata describes a finished experiment.
func (r *Run) Metadata(cfg *config.Config, e *experiment.Experiment) RunMetadata {
	meta := RunMetadata{
		ID:        r.ID,
		Name:      e.Name(),
		Timestamp: r.created,
		Seed:      cfg.Seed,
		Timestep:  e.Timestep(),
		Sink:      cfg.Sink,
		Ticks:     e.Ticks(),
		Time:      e.Time(),
		Results:   e.Results(),
		Params:    make(map[string]map[string]any),
	}
	for _, trial := range e.Trials() {
		names := make([]string, len(trial))
		for i, t := range trial {
			names[i] = t.Name()
			if len(t.Params()) > 0 {
				meta.Params[t.Name()] = t.Params()
			}
		}
		meta.Trials = append(meta.Trials, names)
	}
	if err := e.Err(); err != nil {
		meta.Error = err.Error()
	}
	return meta
}

// OnComplete writes the run metadata once the experiment finishes. A write
// failure is reported by Err.
func (r *Run) OnComplete(cfg *config.Config) experiment.Option {
	return experiment.OnComplete(func(e *experiment.Experiment) {
		if err := r.SaveMetadata(r.Metadata(cfg, e)); err != nil {
			r.err = fmt.Errorf("save metadata: %w", err)
		}
	})
}

func (r *Run) Err() error { return r.err }

// Sink opens the row sink named by kind: csv, sqlite or none. A nil sink
// with a nil error means rows are not kept.
func (r *Run) Sink(kind string) (experiment.Sink, error) {
	switch kind {
	case "", "csv":
		return NewCSVSink(r.Dir), nil
	case "sqlite":
		s, err := NewSQLiteSink(filepath.Join(r.Dir, databaseFile))
		if err != nil {
			return nil, err
		}
		r.sqlite = s
		return s, nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown sink: %s", kind)
}

func (r *Run) Close() error {
	if r.sqlite == nil {
		return nil
	}
	err := r.sqlite.Close()
	r.sqlite = nil
	return err
}

func fileName(taskName string) string {
	return strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(taskName)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseRow(taskName string, record []string) (task.Row, error) {
	if len(record) < len(task.MetaColumns) {
		return task.Row{}, fmt.Errorf("short row: %d fields", len(record))
	}
	status, err := task.ParseStatus(record[1])
	if err != nil {
		return task.Row{}, err
	}
	row := task.Row{Task: taskName, Status: status}
	if row.TaskTime, err = strconv.ParseFloat(record[2], 64); err != nil {
		return task.Row{}, err
	}
	if row.ExperimentTime, err = strconv.ParseFloat(record[3], 64); err != nil {
		return task.Row{}, err
	}
	row.Values = make([]float64, 0, len(record)-len(task.MetaColumns))
	for _, field := range record[len(task.MetaColumns):] {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return task.Row{}, err
		}
		row.Values = append(row.Values, v)
	}
	return row, nil
}

func readCSV(taskName, path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Table{Task: taskName}, nil
	}

	t := &Table{Task: taskName, Header: records[0], Rows: make([]task.Row, 0, len(records)-1)}
	for i, record := range records[1:] {
		row, err := parseRow(taskName, record)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
