package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/rdpc/internal/session"
)

func TestNewContextDefaults(t *testing.T) {
	t.Parallel()

	ctx := session.NewContext(session.Config{User: "alice", Width: 800, Height: 600, Depth: 16}, nil, nil)

	assert.Equal(t, uint32(0x409), ctx.Config.KeyboardLayout)
	assert.Equal(t, "rdpc", ctx.Config.ClientName)
	assert.IsType(t, session.NopRenderer{}, ctx.Renderer)
	assert.Equal(t, session.DefaultIOChannel, ctx.State.IOChannel())
	assert.Equal(t, session.DefaultRedirectChannel, ctx.State.RedirectChannel())

	w, h := ctx.Screen.Size()
	assert.Equal(t, uint16(800), w)
	assert.Equal(t, uint16(600), h)
	assert.Equal(t, uint16(16), ctx.Screen.Depth())
	assert.Nil(t, ctx.Screen.Palette())
}

func TestStateUpdates(t *testing.T) {
	t.Parallel()

	s := session.NewState()
	s.SetChannels(1005, 0)
	s.SetUserID(1007)
	s.SetShareID(0x103ea)
	s.SetErrorInfo(0x0c)

	assert.Equal(t, session.Snapshot{
		ShareID:         0x103ea,
		ErrorInfo:       0x0c,
		IOChannel:       1005,
		RedirectChannel: session.DefaultRedirectChannel,
		UserID:          1007,
	}, s.Snapshot())
}

func TestScreenResize(t *testing.T) {
	t.Parallel()

	s := session.NewScreen(1024, 768, 16)
	assert.False(t, s.Resize(1024, 768))
	assert.True(t, s.Resize(1280, 720))
	w, h := s.Size()
	assert.Equal(t, uint16(1280), w)
	assert.Equal(t, uint16(720), h)
}
