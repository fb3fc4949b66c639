// Package capture records the byte stream of a session and plays it back
// as a transport, so decoding can be reproduced offline.
//
// A capture file is a zstd stream of msgpack values: one Header followed by
// Records until EOF. Bytes are recorded above TLS.
package capture

import (
	"github.com/tinylib/msgp/msgp"
)

// FormatVersion is written into every Header.
const FormatVersion = 1

// Direction of a recorded chunk.
type Direction uint8

const (
	Inbound Direction = iota
	Outbound
	// Upgrade marks the point where the stream switched to TLS.
	Upgrade
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "in"
	case Outbound:
		return "out"
	case Upgrade:
		return "upgrade"
	}
	return "unknown"
}

// Header describes the session a capture came from.
type Header struct {
	SessionID string `msg:"session_id"`
	Target    string `msg:"target"`
	Started   int64  `msg:"started"` // unix nanos
	Version   int    `msg:"version"`
	Width     uint16 `msg:"width"`
	Height    uint16 `msg:"height"`
	Depth     uint16 `msg:"depth"`
}

// Record is one chunk as it crossed the transport.
type Record struct {
	Data   []byte    `msg:"data"`
	Offset int64     `msg:"offset"` // nanos since Header.Started
	Dir    Direction `msg:"dir"`
}

var (
	_ msgp.Encodable = (*Header)(nil)
	_ msgp.Decodable = (*Header)(nil)
	_ msgp.Encodable = (*Record)(nil)
	_ msgp.Decodable = (*Record)(nil)
)

func (h *Header) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteMapHeader(7); err != nil {
		return err
	}
	fields := []struct {
		write func() error
		key   string
	}{
		{key: "version", write: func() error { return w.WriteInt(h.Version) }},
		{key: "session_id", write: func() error { return w.WriteString(h.SessionID) }},
		{key: "target", write: func() error { return w.WriteString(h.Target) }},
		{key: "started", write: func() error { return w.WriteInt64(h.Started) }},
		{key: "width", write: func() error { return w.WriteUint16(h.Width) }},
		{key: "height", write: func() error { return w.WriteUint16(h.Height) }},
		{key: "depth", write: func() error { return w.WriteUint16(h.Depth) }},
	}
	for _, f := range fields {
		if err := w.WriteString(f.key); err != nil {
			return err
		}
		if err := f.write(); err != nil {
			return msgp.WrapError(err, f.key)
		}
	}
	return nil
}

// DecodeMsg reads a Header. Unknown keys are skipped.
func (h *Header) DecodeMsg(r *msgp.Reader) error {
	n, err := r.ReadMapHeader()
	if err != nil {
		return err
	}
	for ; n > 0; n-- {
		key, err := r.ReadMapKeyPtr()
		if err != nil {
			return msgp.WrapError(err)
		}
		switch msgp.UnsafeString(key) {
		case "version":
			h.Version, err = r.ReadInt()
		case "session_id":
			h.SessionID, err = r.ReadString()
		case "target":
			h.Target, err = r.ReadString()
		case "started":
			h.Started, err = r.ReadInt64()
		case "width":
			h.Width, err = r.ReadUint16()
		case "height":
			h.Height, err = r.ReadUint16()
		case "depth":
			h.Depth, err = r.ReadUint16()
		default:
			err = r.Skip()
		}
		if err != nil {
			return msgp.WrapError(err, string(key))
		}
	}
	return nil
}

func (rec *Record) EncodeMsg(w *msgp.Writer) error {
	if err := w.WriteMapHeader(3); err != nil {
		return err
	}
	if err := w.WriteString("dir"); err != nil {
		return err
	}
	if err := w.WriteUint8(uint8(rec.Dir)); err != nil {
		return msgp.WrapError(err, "dir")
	}
	if err := w.WriteString("offset"); err != nil {
		return err
	}
	if err := w.WriteInt64(rec.Offset); err != nil {
		return msgp.WrapError(err, "offset")
	}
	if err := w.WriteString("data"); err != nil {
		return err
	}
	if err := w.WriteBytes(rec.Data); err != nil {
		return msgp.WrapError(err, "data")
	}
	return nil
}

// DecodeMsg reads a Record, reusing rec.Data's storage. A clean end of
// stream is returned as io.EOF unwrapped.
func (rec *Record) DecodeMsg(r *msgp.Reader) error {
	n, err := r.ReadMapHeader()
	if err != nil {
		return err
	}
	for ; n > 0; n-- {
		key, err := r.ReadMapKeyPtr()
		if err != nil {
			return msgp.WrapError(err)
		}
		switch msgp.UnsafeString(key) {
		case "dir":
			var d uint8
			d, err = r.ReadUint8()
			rec.Dir = Direction(d)
		case "offset":
			rec.Offset, err = r.ReadInt64()
		case "data":
			rec.Data, err = r.ReadBytes(rec.Data[:0])
		default:
			err = r.Skip()
		}
		if err != nil {
			return msgp.WrapError(err, string(key))
		}
	}
	return nil
}
