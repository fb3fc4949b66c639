package graph

import (
	"sync/atomic"

	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/rdperr"
)

// State is the lifecycle of a one-time element.
type State int32

const (
	Armed State = iota
	Fired
)

func (s State) String() string {
	if s == Fired {
		return "fired"
	}
	return "armed"
}

// FirstData handles input while a one-time element is armed. It returns
// true once it has seen the complete response it was waiting for.
type FirstData func(b *buffer.Buffer) (done bool, err error)

// OneTime accepts exactly one logical response. While Armed, input goes to
// the FirstData handler; after it reports done the element is Fired and any
// further input is an UnexpectedResponse.
type OneTime struct {
	onFirst FirstData
	onFire  []func()
	Base
	state atomic.Int32
}

// NewOneTime creates an armed element.
func NewOneTime(id string, fn FirstData) *OneTime {
	return &OneTime{Base: NewBase(id), onFirst: fn}
}

// OnFire registers a callback run synchronously when the element fires.
// Must be called before the graph runs.
func (o *OneTime) OnFire(fn func()) {
	o.onFire = append(o.onFire, fn)
}

// State returns the current state.
func (o *OneTime) State() State { return State(o.state.Load()) }

// Deactivate moves the element to Fired without running callbacks.
func (o *OneTime) Deactivate() {
	o.state.Store(int32(Fired))
}

func (o *OneTime) HandleInput(b *buffer.Buffer) error {
	if o.State() == Fired {
		n := b.Remaining()
		b.Release()
		return rdperr.New(rdperr.UnexpectedResponse, o.id, "%d bytes after step completed", n)
	}
	done, err := o.onFirst(b)
	if err != nil {
		return err
	}
	if done && o.state.CompareAndSwap(int32(Armed), int32(Fired)) {
		for _, fn := range o.onFire {
			fn()
		}
	}
	return nil
}
