package task

import (
	"errors"
	"fmt"

	"github.com/san-kum/dyadsim/internal/dynamo"
)

// Validate reports every configuration problem of the task at once.
// It must pass before the first tick.
func (t *Task) Validate() error {
	var errs []error
	add := func(subject string, err error) {
		errs = append(errs, &dynamo.ConfigError{Task: t.name, Subject: subject, Wrapped: err})
	}

	if t.name == "" {
		add("name", dynamo.ErrEmptyName)
	}
	if !(t.timestep > 0) {
		add(fmt.Sprintf("timestep %g", t.timestep), dynamo.ErrInvalidTimestep)
	}
	if t.duration < 0 {
		add(fmt.Sprintf("duration %g", t.duration), dynamo.ErrInvalidDuration)
	}

	owned := make(map[*dynamo.Entity]bool, len(t.entities))
	names := make(map[string]bool, len(t.entities))
	for i, e := range t.entities {
		switch {
		case e == nil:
			add(fmt.Sprintf("entity %d", i), dynamo.ErrMissingTarget)
			continue
		case e.Name() == "":
			add(fmt.Sprintf("entity %d", i), dynamo.ErrEmptyName)
		case names[e.Name()]:
			add("entity "+e.Name(), dynamo.ErrDuplicateEntity)
		}
		names[e.Name()] = true
		owned[e] = true
	}

	seen := make(map[string]bool, len(t.trajectories))
	for i, r := range t.trajectories {
		switch {
		case r == nil:
			add(fmt.Sprintf("trajectory %d", i), dynamo.ErrMissingTarget)
			continue
		case r.Name() == "":
			add(fmt.Sprintf("trajectory %d", i), dynamo.ErrEmptyName)
		case seen[r.Name()]:
			add("trajectory "+r.Name(), dynamo.ErrDuplicateTrajectory)
		}
		seen[r.Name()] = true
	}

	checkOwned := func(subject string, es []*dynamo.Entity) {
		for _, e := range es {
			if e == nil {
				add(subject, dynamo.ErrMissingTarget)
			} else if !owned[e] {
				add(subject+" -> "+e.Name(), dynamo.ErrUnknownEntity)
			}
		}
	}

	overrides := make(map[*dynamo.Entity]int)
	checkConstraints := func(pass string, cs []dynamo.Constraint) {
		for i, c := range cs {
			subject := fmt.Sprintf("%s constraint %d (%T)", pass, i, c)
			if c == nil || c.Target() == nil {
				add(subject, dynamo.ErrMissingTarget)
				continue
			}
			checkOwned(subject, append([]*dynamo.Entity{c.Target()}, c.References()...))
			if c.Writes() == dynamo.WriteOverride {
				overrides[c.Target()]++
			}
		}
	}
	checkConstraints("pre", t.pre)
	checkConstraints("main", t.constraints)

	for i, c := range t.endConditions {
		if c == nil {
			add(fmt.Sprintf("end condition %d", i), dynamo.ErrMissingTarget)
			continue
		}
		checkOwned(fmt.Sprintf("end condition %d", i), c.Entities())
	}

	for i, r := range t.roles {
		subject := fmt.Sprintf("role %d", i)
		if r == nil || r.Handle() == nil {
			add(subject, dynamo.ErrMissingTarget)
			continue
		}
		checkOwned(subject, []*dynamo.Entity{r.Handle()})
		overrides[r.Handle()]++
	}

	for _, e := range t.entities {
		if e != nil && overrides[e] > 1 {
			add("entity "+e.Name(), dynamo.ErrConflictingWriters)
		}
	}

	return errors.Join(errs...)
}
