package graph

import (
	"errors"
	"fmt"

	"github.com/bamsammich/rdpc/internal/buffer"
)

var (
	// ErrDuplicateID is returned when two elements share an id.
	ErrDuplicateID = errors.New("duplicate element id")
	// ErrUnknownElement is returned when a link references an element that
	// was never added.
	ErrUnknownElement = errors.New("unknown element")
	// ErrBuilt is returned when a builder is used after Build.
	ErrBuilt = errors.New("graph already built")
)

type link struct {
	from *Pad
	to   Element
}

// Builder collects elements and links and validates them in Build.
type Builder struct {
	elems map[string]Element
	order []string
	links []link
	err   error
	built bool
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{elems: make(map[string]Element)}
}

// Add registers elements. The first error is reported by Build.
func (b *Builder) Add(elems ...Element) *Builder {
	for _, e := range elems {
		if b.err != nil {
			return b
		}
		if _, ok := b.elems[e.ID()]; ok {
			b.err = fmt.Errorf("%w: %s", ErrDuplicateID, e.ID())
			return b
		}
		b.elems[e.ID()] = e
		b.order = append(b.order, e.ID())
	}
	return b
}

// Link routes pad from to element to.
func (b *Builder) Link(from *Pad, to Element) *Builder {
	b.links = append(b.links, link{from: from, to: to})
	return b
}

// Build validates every link and attaches it to its pad. entry is the
// element that receives raw transport bytes.
func (b *Builder) Build(entry Element) (*Graph, error) {
	if b.built {
		return nil, ErrBuilt
	}
	if b.err != nil {
		return nil, b.err
	}
	if b.elems[entry.ID()] != entry {
		return nil, fmt.Errorf("entry %s: %w", entry.ID(), ErrUnknownElement)
	}

	pads := make(map[*Pad]bool)
	for _, id := range b.order {
		if src, ok := b.elems[id].(Source); ok {
			for _, p := range src.Pads() {
				pads[p] = true
			}
		}
	}
	for _, l := range b.links {
		if !pads[l.from] {
			return nil, fmt.Errorf("link from pad %s: %w", l.from.Name(), ErrUnknownElement)
		}
		if b.elems[l.to.ID()] != l.to {
			return nil, fmt.Errorf("link %s -> %s: %w", l.from.Name(), l.to.ID(), ErrUnknownElement)
		}
	}
	for _, l := range b.links {
		l.from.links = append(l.from.links, l.to)
	}
	b.built = true

	return &Graph{entry: entry, elems: b.elems, order: b.order}, nil
}

// Graph is an immutable, validated element topology.
type Graph struct {
	entry Element
	elems map[string]Element
	order []string
}

// Push feeds b to the entry element.
func (g *Graph) Push(b *buffer.Buffer) error {
	return g.entry.HandleInput(b)
}

// Element looks up an element by id.
func (g *Graph) Element(id string) (Element, bool) {
	e, ok := g.elems[id]
	return e, ok
}

// Elements returns every element in insertion order.
func (g *Graph) Elements() []Element {
	out := make([]Element, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.elems[id])
	}
	return out
}
