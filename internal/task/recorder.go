package task

// Row is one persisted record: the view participants saw on one tick.
// Values follow the header returned by Task.Header after the four
// leading metadata columns.
type Row struct {
	Task           string
	Status         Status
	TaskTime       float64
	ExperimentTime float64
	Values         []float64
}

// Recorder is the persistence boundary. Begin receives the header before
// the first row of a task run; Close ends the run.
type Recorder interface {
	Begin(task string, header []string) error
	Record(row Row) error
	Close() error
}

// MetaColumns lead every header.
var MetaColumns = []string{"task", "taskstate", "tasktime", "experimenttime"}

func entityColumns(name string) []string {
	return []string{
		"object_" + name + "_pos",
		"object_" + name + "_vel",
		"object_" + name + "_acc",
	}
}

func trajectoryColumn(name string) string {
	return "reference_" + name + "_now"
}
