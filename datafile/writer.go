// Package datafile implements a single bounded data file: C3 (writer)
// appends framed packets behind a buffered writer and reports (IsFull)
// when it reaches its packet-count ceiling, so the caller can roll to a
// new file; C4 (reader) streams them back with a buffered reader, seeking
// by byte offset and validating each packet's CRC-32.
//
// The writer's buffering and offset bookkeeping is adapted from the
// teacher's disk segment manager (segmentmanager/disk.go): a
// mutex-guarded active file handle and a rotate-on-threshold check.
// Flush hands buffered bytes to the OS; the writer never fsyncs.
package datafile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Zoranner/pcapfile/codec"
	"github.com/Zoranner/pcapfile/pcap"
)

// DefaultMaxPacketsPerFile is the packet-count ceiling for a rolled data
// file absent an explicit override.
const DefaultMaxPacketsPerFile = 500

// writeBufferSize is the buffered-writer threshold; payloads at or above
// it bypass the buffer and stream straight to the file.
const writeBufferSize = 1 << 20 // ~1 MiB

// streamChunkSize bounds how much of an oversized payload is copied to
// the file handle per write(2) call.
const streamChunkSize = 4 << 20 // 4 MiB

// Writer creates and appends to a single bounded data file.
type Writer struct {
	mu          sync.Mutex
	f           *os.File
	bw          *bufio.Writer
	path        string
	offset      int64
	packetCount int
	maxPackets  int
}

// Create opens path for exclusive writing, writes the 16-byte data file
// header, and prepares it to accept up to maxPacketsPerFile packets.
func Create(path string, maxPacketsPerFile int) (*Writer, error) {
	if maxPacketsPerFile <= 0 {
		maxPacketsPerFile = DefaultMaxPacketsPerFile
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating data file %s: %w", path, err)
	}

	w := &Writer{
		f:          f,
		bw:         bufio.NewWriterSize(f, writeBufferSize),
		path:       path,
		maxPackets: maxPacketsPerFile,
	}

	header := codec.NewDataFileHeader().ToBytes()
	if _, err := w.bw.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing data file header %s: %w", path, err)
	}
	w.offset = int64(len(header))

	return w, nil
}

// Path returns the file path this writer was created with.
func (w *Writer) Path() string { return w.path }

// CurrentPacketCount returns the number of packets written so far.
func (w *Writer) CurrentPacketCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.packetCount
}

// MaxPacketsPerFile returns the configured packet-count ceiling.
func (w *Writer) MaxPacketsPerFile() int { return w.maxPackets }

// IsFull reports whether this file has reached its packet-count ceiling
// and must be rolled before the next write.
func (w *Writer) IsFull() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.packetCount >= w.maxPackets
}

// WritePacket appends p's frame (header + payload) and returns the byte
// offset of the frame's first header byte at the moment of the call.
func (w *Writer) WritePacket(p *pcap.Packet) (int64, error) {
	if p == nil {
		return 0, fmt.Errorf("nil packet: %w", pcap.ErrInvalidArgument)
	}
	if err := p.Validate(); err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	frameOffset := w.offset
	header := codec.FrameHeader{
		Timestamp: p.Timestamp,
		Length:    uint32(len(p.Payload)),
		Checksum:  p.Checksum,
	}.ToBytes()

	if len(p.Payload) >= writeBufferSize {
		// Oversized payload: flush buffered output first so the byte
		// offset we hand back stays accurate, then stream directly.
		if err := w.bw.Flush(); err != nil {
			return 0, fmt.Errorf("flushing %s: %w", w.path, err)
		}
		if _, err := w.f.Write(header); err != nil {
			return 0, fmt.Errorf("writing frame header to %s: %w", w.path, err)
		}
		if err := streamPayload(w.f, p.Payload); err != nil {
			return 0, fmt.Errorf("writing payload to %s: %w", w.path, err)
		}
	} else {
		if _, err := w.bw.Write(header); err != nil {
			return 0, fmt.Errorf("writing frame header to %s: %w", w.path, err)
		}
		if _, err := w.bw.Write(p.Payload); err != nil {
			return 0, fmt.Errorf("writing payload to %s: %w", w.path, err)
		}
	}

	w.offset += int64(len(header)) + int64(len(p.Payload))
	w.packetCount++

	return frameOffset, nil
}

func streamPayload(w io.Writer, payload []byte) error {
	for len(payload) > 0 {
		n := len(payload)
		if n > streamChunkSize {
			n = streamChunkSize
		}
		if _, err := w.Write(payload[:n]); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

// Flush flushes buffered output to the OS.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", w.path, err)
	}
	return nil
}

// Close flushes and releases the underlying file handle. Idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	flushErr := w.bw.Flush()
	closeErr := w.f.Close()
	w.f = nil
	if flushErr != nil {
		return fmt.Errorf("flushing %s: %w", w.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", w.path, closeErr)
	}
	return nil
}
