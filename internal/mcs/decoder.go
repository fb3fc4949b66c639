package mcs

import (
	"log/slog"

	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/graph"
	"github.com/bamsammich/rdpc/internal/rdperr"
	"github.com/bamsammich/rdpc/internal/session"
)

// MetaChannel is the buffer metadata key holding the MCS channel id of a
// send-data indication payload.
const MetaChannel = "mcs.channel"

// Decoder routes MCS PDUs. Connect responses, attach confirms and join
// confirms leave positioned at their first byte; send-data indications
// leave positioned at their payload, on IO, Redirect or Other by channel.
type Decoder struct {
	Connect  *graph.Pad
	Attach   *graph.Pad
	Join     *graph.Pad
	IO       *graph.Pad
	Redirect *graph.Pad
	Other    *graph.Pad
	state    *session.State
	graph.Base
}

// NewDecoder creates the MCS decoder element.
func NewDecoder(id string, state *session.State) *Decoder {
	return &Decoder{
		Base:     graph.NewBase(id),
		Connect:  graph.NewPad(id, "connect"),
		Attach:   graph.NewPad(id, "attach"),
		Join:     graph.NewPad(id, "join"),
		IO:       graph.NewPad(id, "io"),
		Redirect: graph.NewPad(id, "redirect"),
		Other:    graph.NewPad(id, "other"),
		state:    state,
	}
}

func (d *Decoder) Pads() []*graph.Pad {
	return []*graph.Pad{d.Connect, d.Attach, d.Join, d.IO, d.Redirect, d.Other}
}

func (d *Decoder) HandleInput(b *buffer.Buffer) error {
	first, err := b.PeekU8()
	if err != nil {
		b.Release()
		return err
	}
	if first == 0x7F {
		return d.Connect.Push(b)
	}

	switch first >> 2 {
	case typeAttachUserConfirm:
		return d.Attach.Push(b)
	case typeChannelJoinConfirm:
		return d.Join.Push(b)
	case typeSendDataIndication:
		return d.dispatchData(b)
	case typeDisconnectUltimatum:
		b.Release()
		return rdperr.New(rdperr.Disconnected, "mcs", "disconnect provider ultimatum")
	default:
		b.Release()
		return rdperr.New(rdperr.UnexpectedPDUType, "mcs", "domain pdu %d", first>>2)
	}
}

func (d *Decoder) dispatchData(b *buffer.Buffer) error {
	if err := b.Skip(1); err != nil {
		b.Release()
		return err
	}
	h, err := readDataHeader(b)
	if err != nil {
		b.Release()
		return err
	}
	b.Set(MetaChannel, h.ChannelID)

	switch h.ChannelID {
	case d.state.IOChannel():
		return d.IO.Push(b)
	case d.state.RedirectChannel():
		return d.Redirect.Push(b)
	default:
		slog.Debug("data on unhandled channel", "channel", h.ChannelID, "bytes", h.Length)
		return d.Other.Push(b)
	}
}
