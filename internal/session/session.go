// Package session holds the state shared by every protocol element of one
// connection: identifiers assigned during the handshake, the screen
// description, and the collaborators that consume decoded output.
package session

import (
	"image/color"
	"sync"
)

// Default channel identifiers used until the server says otherwise.
const (
	DefaultIOChannel       uint16 = 1003
	DefaultRedirectChannel uint16 = 1004
	// UserChannelBase is added to the attach-user initiator to form the
	// user channel id.
	UserChannelBase uint16 = 1001
)

// State is the set of identifiers the server assigns during the handshake.
// It is written by the parsing goroutine and read by encoders on others.
type State struct {
	mu              sync.RWMutex
	shareID         uint32
	errorInfo       uint32
	ioChannel       uint16
	redirectChannel uint16
	userID          uint16
}

// NewState returns a State holding the default channel ids.
func NewState() *State {
	return &State{ioChannel: DefaultIOChannel, redirectChannel: DefaultRedirectChannel}
}

// Snapshot is a copy of State for reporting.
type Snapshot struct {
	ShareID         uint32 `json:"share_id"`
	ErrorInfo       uint32 `json:"error_info"`
	IOChannel       uint16 `json:"io_channel"`
	RedirectChannel uint16 `json:"redirect_channel"`
	UserID          uint16 `json:"user_id"`
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ShareID:         s.shareID,
		ErrorInfo:       s.errorInfo,
		IOChannel:       s.ioChannel,
		RedirectChannel: s.redirectChannel,
		UserID:          s.userID,
	}
}

func (s *State) ShareID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shareID
}

func (s *State) SetShareID(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shareID = id
}

func (s *State) IOChannel() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ioChannel
}

func (s *State) RedirectChannel() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.redirectChannel
}

// SetChannels records the channel ids announced in the connect response.
// Zero values keep the current id.
func (s *State) SetChannels(io, redirect uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if io != 0 {
		s.ioChannel = io
	}
	if redirect != 0 {
		s.redirectChannel = redirect
	}
}

// UserID is the user channel id, zero until attach-user completes.
func (s *State) UserID() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *State) SetUserID(id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = id
}

// ErrorInfo is the last set-error-info code sent by the server.
func (s *State) ErrorInfo() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errorInfo
}

func (s *State) SetErrorInfo(code uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorInfo = code
}

// Palette is a 256-entry color table.
type Palette [256]color.RGBA

// Screen is the negotiated desktop geometry and current palette.
type Screen struct {
	palette *Palette
	mu      sync.RWMutex
	width   uint16
	height  uint16
	depth   uint16
}

// NewScreen creates a screen description from configuration.
func NewScreen(width, height, depth uint16) *Screen {
	return &Screen{width: width, height: height, depth: depth}
}

// Size returns width and height.
func (s *Screen) Size() (uint16, uint16) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

func (s *Screen) Depth() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.depth
}

// Resize records a server-imposed desktop size. It reports whether the size
// changed.
func (s *Screen) Resize(width, height uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.width == width && s.height == height {
		return false
	}
	s.width, s.height = width, height
	return true
}

// Palette returns the current palette, or nil before any palette update.
func (s *Screen) Palette() *Palette {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.palette
}

// SetPalette replaces the palette.
func (s *Screen) SetPalette(p *Palette) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.palette = p
}

// BitmapRectangle is one decoded rectangle from a bitmap update. Data holds
// BufferWidth*BufferHeight pixels, bottom-up, and is only valid during the
// DrawBitmap call.
type BitmapRectangle struct {
	Data         []byte
	X            uint16
	Y            uint16
	Width        uint16
	Height       uint16
	BufferWidth  uint16
	BufferHeight uint16
	Depth        uint16
}

// Renderer consumes decoded screen output.
type Renderer interface {
	DrawBitmap(r BitmapRectangle)
	PaletteChanged(p *Palette)
	Resize(width, height int)
}

// NopRenderer discards everything.
type NopRenderer struct{}

func (NopRenderer) DrawBitmap(BitmapRectangle) {}
func (NopRenderer) PaletteChanged(*Palette)    {}
func (NopRenderer) Resize(int, int)            {}

// Sender writes one complete outbound PDU.
type Sender interface {
	Send(p []byte) error
}

// Config is what the user supplies about the session.
type Config struct {
	User           string
	Domain         string
	Password       string
	ClientName     string
	KeyboardLayout uint32
	Width          uint16
	Height         uint16
	Depth          uint16
}

// Context is the per-connection state passed by reference to every element
// that needs it. Nothing in the client reaches session state any other way.
type Context struct {
	State    *State
	Screen   *Screen
	Renderer Renderer
	Sender   Sender
	Config   Config
}

// NewContext builds a Context for cfg. A nil renderer discards output.
func NewContext(cfg Config, r Renderer, s Sender) *Context {
	if r == nil {
		r = NopRenderer{}
	}
	if cfg.KeyboardLayout == 0 {
		cfg.KeyboardLayout = 0x409
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "rdpc"
	}
	return &Context{
		State:    NewState(),
		Screen:   NewScreen(cfg.Width, cfg.Height, cfg.Depth),
		Renderer: r,
		Sender:   s,
		Config:   cfg,
	}
}
