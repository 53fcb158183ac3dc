package task

import "fmt"

// Status is the lifecycle state of a task.
type Status int

const (
	Waiting Status = iota
	Running
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case Waiting:
		return "WAITING"
	case Running:
		return "RUNNING"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the task has stopped for good.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed
}

// ParseStatus is the inverse of String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "WAITING":
		return Waiting, nil
	case "RUNNING":
		return Running, nil
	case "COMPLETED":
		return Completed, nil
	case "FAILED":
		return Failed, nil
	}
	return Waiting, fmt.Errorf("unknown task status: %q", s)
}
