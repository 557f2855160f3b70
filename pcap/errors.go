// Package pcap holds the data model and error taxonomy shared by every
// layer of the packet-capture storage engine: the packet type, the
// on-disk size limits, and the sentinel error kinds every other package
// wraps its failures in.
package pcap

import "errors"

// Error kinds. Failures detected by this module's own checks wrap one of
// these with errors.Is-compatible context via fmt.Errorf("...: %w", ErrX).
// Errors from the operating system (file and socket I/O) and truncated
// reads (io.ErrUnexpectedEOF) are returned wrapped with context but not
// with ErrIO; no function in this module returns ErrIO.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrInvalidFormat   = errors.New("invalid format")
	ErrIntegrity       = errors.New("integrity check failed")
	ErrIO              = errors.New("i/o failure")
	ErrInvalidState    = errors.New("invalid state")
	ErrCancelled       = errors.New("cancelled")
)
