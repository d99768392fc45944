// Package uictl holds small controls shared between the run controller and front ends.
package uictl

import (
	"sync/atomic"

	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer | constraints.Float
}

// Knob is a simple on/off toggle control.
type Knob interface {
	Read() bool
	On()
	Off()
	Toggle()
}

// Dial is a control that can read some value.
type Dial[N Number] interface {
	Read() N
}

// CappedDial is a Dial with a maximum cap value.
type CappedDial[N Number] interface {
	Dial[N]
	Cap() (num, max N)
}

// Switch is a concurrency-safe Knob.
type Switch struct {
	on atomic.Bool
}

// NewSwitch returns a switch in the given position.
func NewSwitch(on bool) *Switch {
	s := &Switch{}
	s.on.Store(on)
	return s
}

func (s *Switch) Read() bool { return s.on.Load() }
func (s *Switch) On()        { s.on.Store(true) }
func (s *Switch) Off()       { s.on.Store(false) }

func (s *Switch) Toggle() {
	for {
		old := s.on.Load()
		if s.on.CompareAndSwap(old, !old) {
			return
		}
	}
}
