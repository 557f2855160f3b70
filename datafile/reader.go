package datafile

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/Zoranner/pcapfile/codec"
	"github.com/Zoranner/pcapfile/pcap"
)

// readBufferSize is the buffered-reader size; bufio.Reader already
// bypasses its internal buffer for reads at or above this size, so
// oversized payloads stream straight from the file without an explicit
// branch here.
const readBufferSize = 4096

// CRCMode selects how ReadPacket reacts to a checksum mismatch.
type CRCMode int

const (
	// CRCStrict fails ReadPacket with pcap.ErrIntegrity on mismatch.
	CRCStrict CRCMode = iota
	// CRCLenient returns the packet with corrupt=true instead of failing.
	CRCLenient
)

// Reader streams framed packets out of a single data file.
type Reader struct {
	f       *os.File
	br      *bufio.Reader
	path    string
	mode    CRCMode
	pos     int64
	onWarn  func(offset int64, err error)
}

// Option configures a Reader at Open time.
type Option func(*Reader)

// WithCRCMode overrides the default strict CRC policy.
func WithCRCMode(mode CRCMode) Option {
	return func(r *Reader) { r.mode = mode }
}

// WithWarningCallback registers a callback invoked (in CRCLenient mode)
// whenever a packet's checksum fails to verify.
func WithWarningCallback(fn func(offset int64, err error)) Option {
	return func(r *Reader) { r.onWarn = fn }
}

// Open opens path read-only and validates its 16-byte header.
func Open(path string, opts ...Option) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("opening data file %s: %w", path, pcap.ErrNotFound)
		}
		return nil, fmt.Errorf("opening data file %s: %w", path, err)
	}

	r := &Reader{f: f, path: path, mode: CRCStrict}
	for _, o := range opts {
		o(r)
	}

	header := make([]byte, codec.DataFileHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	if _, err := codec.DataFileHeaderFromBytes(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing header of %s: %w", path, err)
	}

	r.pos = int64(codec.DataFileHeaderSize)
	r.br = bufio.NewReaderSize(f, readBufferSize)
	return r, nil
}

// Seek positions the cursor at an absolute byte offset. Offsets before the
// end of the 16-byte header are rejected; beyond that, the caller is
// responsible for supplying an offset that frames a packet (from the
// index), and no check that it does is performed here.
func (r *Reader) Seek(offset int64) error {
	if offset < int64(codec.DataFileHeaderSize) {
		return fmt.Errorf("seek offset %d precedes header: %w", offset, pcap.ErrInvalidArgument)
	}
	if _, err := r.f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seeking %s to %d: %w", r.path, offset, err)
	}
	r.br.Reset(r.f)
	r.pos = offset
	return nil
}

// ReadPacket reads the next framed packet. It returns io.EOF when the
// file ends cleanly between frames. corrupt reports whether the stored
// checksum failed to verify; it is only ever true when the reader was
// opened with WithCRCMode(CRCLenient) — under the (default) strict mode
// a mismatch instead fails with pcap.ErrIntegrity.
func (r *Reader) ReadPacket() (packet *pcap.Packet, corrupt bool, err error) {
	frameOffset := r.pos

	headerBytes := make([]byte, codec.FrameHeaderSize)
	if _, err := io.ReadFull(r.br, headerBytes); err != nil {
		if err == io.EOF {
			return nil, false, io.EOF
		}
		return nil, false, fmt.Errorf("reading frame header in %s at %d: %w", r.path, frameOffset, io.ErrUnexpectedEOF)
	}

	header, err := codec.FrameHeaderFromBytes(headerBytes)
	if err != nil {
		return nil, false, err
	}
	if header.Length == 0 || header.Length > pcap.MaxPacketSize {
		return nil, false, fmt.Errorf("frame at %d in %s has invalid length %d: %w", frameOffset, r.path, header.Length, pcap.ErrInvalidFormat)
	}

	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		return nil, false, fmt.Errorf("reading payload at %d in %s: %w", frameOffset, r.path, io.ErrUnexpectedEOF)
	}
	r.pos = frameOffset + int64(codec.FrameHeaderSize) + int64(header.Length)

	if codec.Checksum(payload) != header.Checksum {
		mismatchErr := fmt.Errorf("checksum mismatch for packet at %d in %s: %w", frameOffset, r.path, pcap.ErrIntegrity)
		if r.mode == CRCStrict {
			return nil, false, mismatchErr
		}
		if r.onWarn != nil {
			r.onWarn(frameOffset, mismatchErr)
		}
		return &pcap.Packet{Timestamp: header.Timestamp, Payload: payload, Checksum: header.Checksum}, true, nil
	}

	return &pcap.Packet{Timestamp: header.Timestamp, Payload: payload, Checksum: header.Checksum}, false, nil
}

// Close releases the underlying file handle. Idempotent.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	if err != nil {
		return fmt.Errorf("closing %s: %w", r.path, err)
	}
	return nil
}
