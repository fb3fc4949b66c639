package graph_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/graph"
	"github.com/bamsammich/rdpc/internal/rdperr"
)

// splitter forwards even-length buffers on one pad and odd ones on another.
type splitter struct {
	even *graph.Pad
	odd  *graph.Pad
	graph.Base
}

func newSplitter(id string) *splitter {
	return &splitter{Base: graph.NewBase(id), even: graph.NewPad(id, "even"), odd: graph.NewPad(id, "odd")}
}

func (s *splitter) Pads() []*graph.Pad { return []*graph.Pad{s.even, s.odd} }

func (s *splitter) HandleInput(b *buffer.Buffer) error {
	if b.Len()%2 == 0 {
		return s.even.Push(b)
	}
	return s.odd.Push(b)
}

type sink struct {
	graph.Base
	got [][]byte
}

func newSink(id string) *sink { return &sink{Base: graph.NewBase(id)} }

func (s *sink) HandleInput(b *buffer.Buffer) error {
	s.got = append(s.got, append([]byte(nil), b.Bytes()...))
	b.Release()
	return nil
}

func TestBuildRoutesAndFansOut(t *testing.T) {
	t.Parallel()

	sp := newSplitter("split")
	a, b, c := newSink("a"), newSink("b"), newSink("c")

	g, err := graph.NewBuilder().
		Add(sp, a, b, c).
		Link(sp.even, a).
		Link(sp.even, b).
		Link(sp.odd, c).
		Build(sp)
	require.NoError(t, err)

	require.NoError(t, g.Push(buffer.From([]byte{1, 2})))
	require.NoError(t, g.Push(buffer.From([]byte{3})))

	assert.Equal(t, [][]byte{{1, 2}}, a.got)
	assert.Equal(t, [][]byte{{1, 2}}, b.got)
	assert.Equal(t, [][]byte{{3}}, c.got)
	assert.Len(t, g.Elements(), 4)
}

func TestPushReleasesWhenUnlinked(t *testing.T) {
	t.Parallel()

	sp := newSplitter("split")
	_, err := graph.NewBuilder().Add(sp).Build(sp)
	require.NoError(t, err)

	buf := buffer.From([]byte{1})
	require.NoError(t, sp.HandleInput(buf))
	assert.Equal(t, 0, buf.Refs())
}

func TestBuildValidation(t *testing.T) {
	t.Parallel()

	sp := newSplitter("split")
	stray := newSink("stray")

	_, err := graph.NewBuilder().Add(sp, newSink("split")).Build(sp)
	require.ErrorIs(t, err, graph.ErrDuplicateID)

	_, err = graph.NewBuilder().Add(sp).Link(sp.even, stray).Build(sp)
	require.ErrorIs(t, err, graph.ErrUnknownElement)

	other := newSplitter("other")
	_, err = graph.NewBuilder().Add(stray).Link(other.odd, stray).Build(stray)
	require.ErrorIs(t, err, graph.ErrUnknownElement)

	_, err = graph.NewBuilder().Add(stray).Build(sp)
	require.ErrorIs(t, err, graph.ErrUnknownElement)

	bld := graph.NewBuilder().Add(stray)
	_, err = bld.Build(stray)
	require.NoError(t, err)
	_, err = bld.Build(stray)
	require.ErrorIs(t, err, graph.ErrBuilt)
}

func TestPushWrapsDownstreamError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	sp := newSplitter("split")
	bad := graph.NewFunc("bad", func(b *buffer.Buffer) error {
		b.Release()
		return boom
	})
	_, err := graph.NewBuilder().Add(sp, bad).Link(sp.odd, bad).Build(sp)
	require.NoError(t, err)

	err = sp.HandleInput(buffer.From([]byte{1}))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "split.odd -> bad")
}

func TestOneTimeFiresOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	fired := 0
	step := graph.NewOneTime("confirm", func(b *buffer.Buffer) (bool, error) {
		defer b.Release()
		calls++
		return b.Len() > 1, nil
	})
	step.OnFire(func() { fired++ })

	require.NoError(t, step.HandleInput(buffer.From([]byte{1})))
	assert.Equal(t, graph.Armed, step.State())

	require.NoError(t, step.HandleInput(buffer.From([]byte{1, 2})))
	assert.Equal(t, graph.Fired, step.State())
	assert.Equal(t, 1, fired)

	err := step.HandleInput(buffer.From([]byte{9}))
	require.ErrorIs(t, err, rdperr.ErrUnexpectedResponse)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, fired)
}

func TestOneTimeDeactivate(t *testing.T) {
	t.Parallel()

	step := graph.NewOneTime("license", func(b *buffer.Buffer) (bool, error) {
		b.Release()
		return true, nil
	})
	step.Deactivate()
	assert.Equal(t, "fired", step.State().String())
	require.ErrorIs(t, step.HandleInput(buffer.From([]byte{1})), rdperr.ErrUnexpectedResponse)
}

func TestSwitch(t *testing.T) {
	t.Parallel()

	sw := graph.NewSwitch("io")
	before, after := newSink("before"), newSink("after")
	_, err := graph.NewBuilder().Add(sw, before, after).
		Link(sw.Before, before).
		Link(sw.After, after).
		Build(sw)
	require.NoError(t, err)

	require.NoError(t, sw.HandleInput(buffer.From([]byte{1})))
	sw.Flip()
	assert.True(t, sw.Flipped())
	require.NoError(t, sw.HandleInput(buffer.From([]byte{2})))

	assert.Equal(t, [][]byte{{1}}, before.got)
	assert.Equal(t, [][]byte{{2}}, after.got)
}

func TestAccumulatorRetainsShortInput(t *testing.T) {
	t.Parallel()

	acc := graph.NewAccumulator(16)

	b := acc.Take(buffer.From([]byte{1, 2}))
	ok, err := acc.EnsureAvailable(b, 4, true)
	require.NoError(t, err)
	assert.False(t, ok)
	b.Release()
	assert.Equal(t, 2, acc.Pending())

	b = acc.Take(buffer.From([]byte{3, 4, 5}))
	defer b.Release()
	ok, err = acc.EnsureAvailable(b, 4, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, b.Unread())
	assert.Equal(t, 0, acc.Pending())

	_, err = acc.EnsureAvailable(b, 17, true)
	require.Error(t, err)

	_, err = acc.EnsureAvailable(b, 6, false)
	require.ErrorIs(t, err, rdperr.ErrTruncated)
}
