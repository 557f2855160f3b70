package pcap

import (
	"fmt"
	"hash/crc32"
)

// MaxPacketSize is the largest payload this format allows in a single
// packet frame.
const MaxPacketSize = 30 * 1024 * 1024

// Packet is a single captured unit: a timestamp in milliseconds since the
// Unix epoch (UTC), an opaque payload, and the CRC-32 of that payload.
type Packet struct {
	Timestamp int64
	Payload   []byte
	Checksum  uint32
}

// NewPacket validates the payload size (1 byte to MaxPacketSize) and
// computes the payload checksum. The timestamp is not checked.
func NewPacket(timestampMs int64, payload []byte) (*Packet, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("packet payload is empty: %w", ErrInvalidArgument)
	}
	if len(payload) > MaxPacketSize {
		return nil, fmt.Errorf("packet payload %d bytes exceeds %d byte limit: %w", len(payload), MaxPacketSize, ErrInvalidArgument)
	}

	return &Packet{
		Timestamp: timestampMs,
		Payload:   payload,
		Checksum:  crc32.ChecksumIEEE(payload),
	}, nil
}

// Validate re-checks the invariants NewPacket enforces, for packets
// assembled directly from decoded bytes rather than via NewPacket.
func (p *Packet) Validate() error {
	if len(p.Payload) == 0 {
		return fmt.Errorf("packet payload is empty: %w", ErrInvalidArgument)
	}
	if len(p.Payload) > MaxPacketSize {
		return fmt.Errorf("packet payload %d bytes exceeds %d byte limit: %w", len(p.Payload), MaxPacketSize, ErrInvalidArgument)
	}
	return nil
}
