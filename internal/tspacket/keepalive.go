// Package tspacket provides the single MPEG-TS construct this proxy emits
// directly: the null keepalive packet.
package tspacket

// NullPacketSize is the fixed size of an MPEG-TS packet.
const NullPacketSize = 188

// NullPacket is a valid MPEG-TS null packet: PID 0x1FFF, payload-only
// adaptation-field control, zero-filled payload. Emitted verbatim on the
// client session's keepalive tick.
var NullPacket = buildNullPacket()

func buildNullPacket() []byte {
	p := make([]byte, NullPacketSize)
	p[0] = 0x47
	p[1] = 0x1F
	p[2] = 0xFF
	p[3] = 0x10
	return p
}
