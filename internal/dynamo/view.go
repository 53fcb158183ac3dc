package dynamo

// EntityView is the visible part of one entity.
type EntityView struct {
	State      State      `json:"state"`
	Appearance Appearance `json:"appearance,omitempty"`
}

// TrajectoryView carries the sampled window of a reference trajectory.
// Samples and Times are aligned: past samples, the current sample, then
// the future samples.
type TrajectoryView struct {
	Samples    []float64  `json:"samples"`
	Times      []float64  `json:"times"`
	Now        float64    `json:"now"`
	Appearance Appearance `json:"appearance,omitempty"`
}

// View is the snapshot of a task taken once per tick, before constraints
// run. Views are values: transforms build new maps and slices rather than
// editing the ones they receive.
type View struct {
	Task           string                    `json:"task"`
	Status         string                    `json:"status"`
	TaskTime       float64                   `json:"task_time"`
	ExperimentTime float64                   `json:"experiment_time"`
	Message        string                    `json:"message,omitempty"`
	Entities       map[string]EntityView     `json:"entities"`
	Trajectories   map[string]TrajectoryView `json:"trajectories"`
}

// Clone returns a deep copy of the dynamic parts of the view. Appearance
// maps are shared.
func (v View) Clone() View {
	c := v
	c.Entities = make(map[string]EntityView, len(v.Entities))
	for name, e := range v.Entities {
		c.Entities[name] = e
	}
	c.Trajectories = make(map[string]TrajectoryView, len(v.Trajectories))
	for name, tr := range v.Trajectories {
		tr.Samples = append([]float64(nil), tr.Samples...)
		tr.Times = append([]float64(nil), tr.Times...)
		c.Trajectories[name] = tr
	}
	return c
}
