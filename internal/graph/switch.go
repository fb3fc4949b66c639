package graph

import (
	"sync/atomic"

	"github.com/bamsammich/rdpc/internal/buffer"
)

// Switch forwards to Before until Flip is called, then to After. It stands
// in for rewiring: both routes are linked at build time and a mode value
// picks one per buffer.
type Switch struct {
	Before *Pad
	After  *Pad
	Base
	flipped atomic.Bool
}

// NewSwitch creates a switch routing to Before.
func NewSwitch(id string) *Switch {
	return &Switch{
		Base:   NewBase(id),
		Before: NewPad(id, "before"),
		After:  NewPad(id, "after"),
	}
}

func (s *Switch) Pads() []*Pad { return []*Pad{s.Before, s.After} }

// Flip routes all later input to After.
func (s *Switch) Flip() { s.flipped.Store(true) }

// Flipped reports whether Flip has been called.
func (s *Switch) Flipped() bool { return s.flipped.Load() }

func (s *Switch) HandleInput(b *buffer.Buffer) error {
	if s.flipped.Load() {
		return s.After.Push(b)
	}
	return s.Before.Push(b)
}
