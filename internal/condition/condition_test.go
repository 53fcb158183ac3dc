package condition

import (
	"testing"

	"github.com/san-kum/dyadsim/internal/dynamo"
)

type fixed struct {
	result bool
	calls  int
}

func (f *fixed) Check(float64) bool         { f.calls++; return f.result }
func (f *fixed) Entities() []*dynamo.Entity { return nil }

func at(pos float64) *dynamo.Entity {
	return dynamo.NewEntity("e", 0, dynamo.WithInitialPosition(pos))
}

func TestPositionThreshold(t *testing.T) {
	tests := []struct {
		name    string
		pos     float64
		offset  float64
		greater bool
		ref     *dynamo.Entity
		want    bool
	}{
		{"below, checking less", -0.9, -0.8, false, nil, true},
		{"above, checking less", -0.5, -0.8, false, nil, false},
		{"above, checking greater", 0.5, 0.2, true, nil, true},
		{"equal is not beyond", 0.2, 0.2, true, nil, false},
		{"relative to reference", 1.5, 0.2, true, at(1.0), true},
		{"relative, not beyond", 1.1, 0.2, true, at(1.0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPositionThreshold(at(tt.pos), tt.offset, tt.greater, tt.ref)
			if got := c.Check(0.1); got != tt.want {
				t.Errorf("Check() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInRangeForDurationHoldsUntilDuration(t *testing.T) {
	e := at(0)
	c := NewInRangeForDuration(e, 0.2, -0.2, 0.5)

	for i := 1; i <= 4; i++ {
		if c.Check(0.1) {
			t.Fatalf("tick %d: true before the hold time elapsed", i)
		}
	}
	if !c.Check(0.1) {
		t.Fatal("tick 5: expected true once 0.5s accumulated")
	}
	if !c.Check(0.1) {
		t.Fatal("should stay true while in range")
	}
}

func TestInRangeForDurationResetsOnExit(t *testing.T) {
	e := at(0)
	c := NewInRangeForDuration(e, 0.2, -0.2, 0.3)

	c.Check(0.1)
	c.Check(0.1)
	e.Pin(0.5)
	if c.Check(0.1) {
		t.Fatal("out of range must be false")
	}
	if c.Held() != 0 {
		t.Fatalf("hold time should reset, got %f", c.Held())
	}

	e.Pin(0.2)
	results := []bool{c.Check(0.1), c.Check(0.1), c.Check(0.1)}
	want := []bool{false, false, true}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("tick %d after re-entry: got %v, want %v", i+1, results[i], want[i])
		}
	}
}

func TestInRangeForDurationReset(t *testing.T) {
	c := NewInRangeForDuration(at(0), 1, -1, 1)
	c.Check(0.4)
	c.Reset()
	if c.Held() != 0 {
		t.Errorf("Reset should clear hold time, got %f", c.Held())
	}
}

func TestAndShortCircuits(t *testing.T) {
	first := &fixed{result: false}
	second := &fixed{result: true}

	if (And{first, second}).Check(0.1) {
		t.Error("And with a false member must be false")
	}
	if second.calls != 0 {
		t.Error("And should stop at the first false")
	}
	if !(And{&fixed{result: true}, &fixed{result: true}}).Check(0.1) {
		t.Error("And of trues must be true")
	}
}

func TestOrShortCircuits(t *testing.T) {
	first := &fixed{result: true}
	second := &fixed{result: false}

	if !(Or{first, second}).Check(0.1) {
		t.Error("Or with a true member must be true")
	}
	if second.calls != 0 {
		t.Error("Or should stop at the first true")
	}
	if (Or{&fixed{}, &fixed{}}).Check(0.1) {
		t.Error("Or of falses must be false")
	}
}

func TestCombinatorsCollectEntitiesAndReset(t *testing.T) {
	a, b := at(0), at(0)
	ha := NewInRangeForDuration(a, 1, -1, 1)
	hb := NewInRangeForDuration(b, 1, -1, 1)
	c := Or{And{ha}, hb}

	if got := len(c.Entities()); got != 2 {
		t.Errorf("expected 2 entities, got %d", got)
	}

	ha.Check(0.5)
	hb.Check(0.5)
	c.Reset()
	if ha.Held() != 0 || hb.Held() != 0 {
		t.Error("Reset should reach nested conditions")
	}
}
