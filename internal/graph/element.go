// Package graph provides the dataflow primitives the client is assembled
// from: elements that accept buffers, typed output pads that fan buffers out
// to linked elements, and a builder that resolves the topology once.
//
// Processing is synchronous and depth-first: a Push returns only after every
// downstream element has handled (or retained) its buffer.
package graph

import (
	"fmt"
	"log/slog"

	"github.com/bamsammich/rdpc/internal/buffer"
)

// Element consumes buffers. HandleInput takes ownership of b: the element
// must release it, forward it on a pad, or retain it for reassembly.
type Element interface {
	ID() string
	HandleInput(b *buffer.Buffer) error
}

// Source is an element that exposes output pads.
type Source interface {
	Element
	Pads() []*Pad
}

// Pad is a named output endpoint. Links are attached by Builder.Build and
// never change afterwards.
type Pad struct {
	owner string
	name  string
	links []Element
}

// NewPad creates a pad named name on the element with id owner.
func NewPad(owner, name string) *Pad {
	return &Pad{owner: owner, name: name}
}

// Name returns "owner.name".
func (p *Pad) Name() string { return p.owner + "." + p.name }

// Linked reports whether anything consumes this pad.
func (p *Pad) Linked() bool { return len(p.links) > 0 }

// Push hands b to every linked element. All links but the last receive
// their own reference; the last receives b itself. An unlinked pad
// releases b.
func (p *Pad) Push(b *buffer.Buffer) error {
	if len(p.links) == 0 {
		b.Release()
		return nil
	}
	last := len(p.links) - 1
	for i, el := range p.links {
		out := b
		if i < last {
			out = b.Ref()
		}
		if err := el.HandleInput(out); err != nil {
			if i < last {
				b.Release()
			}
			return fmt.Errorf("%s -> %s: %w", p.Name(), el.ID(), err)
		}
	}
	return nil
}

// Base carries an element id. Embed it to satisfy the ID half of Element.
type Base struct {
	id string
}

// NewBase returns a Base with the given id.
func NewBase(id string) Base { return Base{id: id} }

func (b Base) ID() string { return b.id }

// Discard releases everything it receives, logging at debug level.
type Discard struct {
	Base
}

// NewDiscard creates a sink element.
func NewDiscard(id string) *Discard {
	return &Discard{Base: NewBase(id)}
}

func (d *Discard) HandleInput(b *buffer.Buffer) error {
	slog.Debug("discarding pdu", "element", d.id, "bytes", b.Remaining())
	b.Release()
	return nil
}

// Func adapts a function to an Element.
type Func struct {
	fn func(*buffer.Buffer) error
	Base
}

// NewFunc wraps fn as an element.
func NewFunc(id string, fn func(*buffer.Buffer) error) *Func {
	return &Func{Base: NewBase(id), fn: fn}
}

func (f *Func) HandleInput(b *buffer.Buffer) error { return f.fn(b) }
