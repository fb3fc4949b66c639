package framing

import (
	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/graph"
	"github.com/bamsammich/rdpc/internal/rdperr"
)

// Reassembler is the graph entry. It absorbs arbitrary read boundaries,
// sniffs each PDU's first byte, and emits whole PDUs: TPKT payloads on TPKT
// (header stripped) and fast-path update payloads on FastPath (header
// stripped, flags kept in the "fastpath.flags" metadata key).
type Reassembler struct {
	TPKT     *graph.Pad
	FastPath *graph.Pad
	acc      *graph.Accumulator
	graph.Base
	pdus int
}

// NewReassembler creates the entry element.
func NewReassembler(id string) *Reassembler {
	return &Reassembler{
		Base:     graph.NewBase(id),
		TPKT:     graph.NewPad(id, "tpkt"),
		FastPath: graph.NewPad(id, "fastpath"),
		acc:      graph.NewAccumulator(MaxTPKTSize),
	}
}

func (r *Reassembler) Pads() []*graph.Pad { return []*graph.Pad{r.TPKT, r.FastPath} }

// PDUs returns the number of complete PDUs emitted.
func (r *Reassembler) PDUs() int { return r.pdus }

// Pending returns the number of bytes held back waiting for the rest of a PDU.
func (r *Reassembler) Pending() int { return r.acc.Pending() }

func (r *Reassembler) HandleInput(in *buffer.Buffer) error {
	b := r.acc.Take(in)
	defer b.Release()

	for b.Remaining() > 0 {
		done, err := r.next(b)
		if err != nil || !done {
			return err
		}
	}
	return nil
}

// next emits one PDU from b. It returns false when b holds only part of a
// PDU, which has then been retained.
func (r *Reassembler) next(b *buffer.Buffer) (bool, error) {
	head := b.Unread()
	var total int
	if head[0] == TPKTVersion {
		if ok, err := r.acc.EnsureAvailable(b, TPKTHeaderSize, true); !ok {
			return false, err
		}
		total = int(head[2])<<8 | int(head[3])
		if total < TPKTHeaderSize {
			return false, rdperr.New(rdperr.UnexpectedPDUType, "tpkt", "length %d shorter than header", total)
		}
	} else {
		var ok bool
		total, _, ok = PeekFastPathLength(head)
		if !ok {
			_, err := r.acc.EnsureAvailable(b, 3, true)
			return false, err
		}
		if total < 2 {
			return false, rdperr.New(rdperr.UnexpectedPDUType, "fastpath", "length %d shorter than header", total)
		}
	}

	if ok, err := r.acc.EnsureAvailable(b, total, true); !ok {
		return false, err
	}
	pdu, err := b.ReadBytes(total)
	if err != nil {
		return false, err
	}
	r.pdus++

	if head[0] == TPKTVersion {
		n, err := ReadTPKTHeader(pdu)
		if err != nil {
			pdu.Release()
			return false, err
		}
		pdu.Set("tpkt.length", n)
		return true, r.TPKT.Push(pdu)
	}

	hdr, err := ReadFastPathOutputHeader(pdu)
	if err != nil {
		pdu.Release()
		return false, err
	}
	pdu.Set("fastpath.flags", hdr.Flags)
	return true, r.FastPath.Push(pdu)
}
