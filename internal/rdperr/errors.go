// Package rdperr defines the protocol error taxonomy shared by every layer of
// the client. All fatal errors terminate the session; Truncated is the only
// code that callers treat as "wait for more bytes".
package rdperr

import (
	"errors"
	"fmt"
)

// Code identifies the category of a protocol error.
type Code int

const (
	// Truncated means fewer bytes are available than the parser needs.
	Truncated Code = iota + 1
	// TrailingData means a PDU body was not fully consumed.
	TrailingData
	// UnexpectedPDUType means a PDU of the wrong kind arrived for the current state.
	UnexpectedPDUType
	// UnexpectedUpdateCode means a fast-path update code is unknown.
	UnexpectedUpdateCode
	// NegotiationFailed means the server refused the requested security protocol.
	NegotiationFailed
	// CodecOverrun means a compressed bitmap would read or write out of bounds.
	CodecOverrun
	// UnexpectedResponse means a response arrived after its handshake step fired.
	UnexpectedResponse
	// Unsupported means the server used a feature this client never advertises.
	Unsupported
	// Disconnected means the server ended the session.
	Disconnected
)

var codeNames = [...]string{
	Truncated:            "truncated",
	TrailingData:         "trailing data",
	UnexpectedPDUType:    "unexpected pdu type",
	UnexpectedUpdateCode: "unexpected update code",
	NegotiationFailed:    "negotiation failed",
	CodecOverrun:         "codec overrun",
	UnexpectedResponse:   "unexpected response",
	Unsupported:          "unsupported",
	Disconnected:         "disconnected",
}

func (c Code) String() string {
	if c > 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return "unknown"
}

// Sentinels for errors.Is comparisons. Any *Error matches the sentinel with
// the same Code regardless of Op and Reason.
var (
	ErrTruncated            = &Error{Code: Truncated}
	ErrTrailingData         = &Error{Code: TrailingData}
	ErrUnexpectedPDUType    = &Error{Code: UnexpectedPDUType}
	ErrUnexpectedUpdateCode = &Error{Code: UnexpectedUpdateCode}
	ErrNegotiationFailed    = &Error{Code: NegotiationFailed}
	ErrCodecOverrun         = &Error{Code: CodecOverrun}
	ErrUnexpectedResponse   = &Error{Code: UnexpectedResponse}
	ErrUnsupported          = &Error{Code: Unsupported}
	ErrDisconnected         = &Error{Code: Disconnected}
)

// Error is a structured protocol error.
type Error struct {
	Err    error
	Op     string
	Reason string
	Code   Code
}

func (e *Error) Error() string {
	msg := "rdp " + e.Code.String()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// New builds an Error with a formatted reason.
func New(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and operation to err. Returns nil for a nil err.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf extracts the Code from err, or 0 when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// IsFatal reports whether err must tear down the session. Everything except
// Truncated is fatal, including errors that are not protocol errors at all.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrTruncated)
}

// Reason returns the human-readable diagnostic for err, preferring the
// Reason field of a protocol error.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
