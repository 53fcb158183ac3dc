package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/san-kum/dyadsim/internal/task"
)

// CSVSink writes one <task>.csv per task run into a run directory.
type CSVSink struct {
	dir string
}

func NewCSVSink(dir string) *CSVSink {
	return &CSVSink{dir: dir}
}

func (s *CSVSink) Open(t *task.Task) (task.Recorder, error) {
	return &csvRecorder{path: filepath.Join(s.dir, fileName(t.Name())+".csv")}, nil
}

type csvRecorder struct {
	path   string
	file   *os.File
	w      *csv.Writer
	fields []string
}

func (r *csvRecorder) Begin(_ string, header []string) error {
	f, err := os.Create(r.path)
	if err != nil {
		return err
	}
	r.file = f
	r.w = csv.NewWriter(f)
	r.fields = make([]string, 0, len(header))
	return r.w.Write(header)
}

func (r *csvRecorder) Record(row task.Row) error {
	if r.w == nil {
		return fmt.Errorf("record %s: stream not open", row.Task)
	}
	r.fields = append(r.fields[:0],
		row.Task,
		row.Status.String(),
		formatFloat(row.TaskTime),
		formatFloat(row.ExperimentTime),
	)
	for _, v := range row.Values {
		r.fields = append(r.fields, formatFloat(v))
	}
	return r.w.Write(r.fields)
}

func (r *csvRecorder) Close() error {
	if r.file == nil {
		return nil
	}
	r.w.Flush()
	err := r.w.Error()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	r.file = nil
	r.w = nil
	return err
}
