package handshake

import (
	"github.com/bamsammich/rdpc/internal/buffer"
	"github.com/bamsammich/rdpc/internal/mcs"
	"github.com/bamsammich/rdpc/internal/session"
)

const (
	secInfoPacket = 0x0040

	infoMouse             = 0x00000001
	infoDisableCtrlAltDel = 0x00000002
	infoAutologon         = 0x00000008
	infoUnicode           = 0x00000010
	infoMaximizeShell     = 0x00000020
	infoEnableWindowsKey  = 0x00000100
	infoDefaultFlags      = infoMouse | infoDisableCtrlAltDel | infoUnicode | infoMaximizeShell | infoEnableWindowsKey

	afInet       = 0x0002
	timeZoneSize = 172

	// wallpaper, full-window drag, menu animations, theming and cursor
	// shadow are disabled
	perfFlags = 0x0000002F
)

// EncodeClientInfo returns the security header and TS_INFO_PACKET sent on
// the I/O channel once every channel is joined. Credentials are sent in the
// clear inside the TLS tunnel.
//
//nolint:gosec // G115: field lengths are bounded by the 64 KiB PDU size
func EncodeClientInfo(cfg session.Config, clientAddress string) []byte {
	flags := uint32(infoDefaultFlags)
	if cfg.Password != "" {
		flags |= infoAutologon
	}

	domain := mcs.UTF16LE(cfg.Domain)
	user := mcs.UTF16LE(cfg.User)
	password := mcs.UTF16LE(cfg.Password)
	var shell, workDir []byte

	b := buffer.New(512)
	defer b.Release()
	b.WriteU16LE(secInfoPacket)
	b.WriteU16LE(0) // flagsHi

	b.WriteU32LE(0) // code page
	b.WriteU32LE(flags)
	for _, f := range [][]byte{domain, user, password, shell, workDir} {
		b.WriteU16LE(uint16(len(f)))
	}
	for _, f := range [][]byte{domain, user, password, shell, workDir} {
		b.WriteBytes(f)
		b.WriteU16LE(0)
	}

	addr := append(mcs.UTF16LE(clientAddress), 0, 0)
	dir := append(mcs.UTF16LE(`C:\Windows\System32\mstscax.dll`), 0, 0)
	b.WriteU16LE(afInet)
	b.WriteU16LE(uint16(len(addr)))
	b.WriteBytes(addr)
	b.WriteU16LE(uint16(len(dir)))
	b.WriteBytes(dir)
	b.WriteZeros(timeZoneSize)
	b.WriteU32LE(0) // session id
	b.WriteU32LE(perfFlags)
	b.WriteU16LE(0) // auto-reconnect cookie length

	return append([]byte(nil), b.Bytes()...)
}
