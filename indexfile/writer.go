// Package indexfile implements the project-level index: C5 (writer)
// maintains the project header and, on finalize, serializes the file
// entry table, time index table, and per-file offset index tables in one
// pass; C6 (reader) parses the header and those tables back, loading
// each file's offset index lazily.
//
// The finalize technique — build the whole region in memory, compute its
// CRC-32, patch the header's CRC field in place, write it once — is
// adapted from the teacher's sst/writer.go footer-patching pattern
// (seek back, write a computed field, seek forward again), generalized
// here to an in-memory buffer (orcaman/writerseeker) so the patch never
// needs a real seek, and to an atomic on-disk replace
// (google/renameio) so a crash mid-finalize can never leave a
// half-written project file.
package indexfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/google/renameio"
	"github.com/orcaman/writerseeker"

	"github.com/Zoranner/pcapfile/codec"
	"github.com/Zoranner/pcapfile/pcap"
)

// Writer owns the project-file path for the duration of a write session.
type Writer struct {
	path string
}

// Create writes an empty (zero file, zero index) project header at path,
// so a reader that opens it before Close/WriteAllIndices sees a valid,
// empty project rather than a truncated file.
func Create(path string) (*Writer, error) {
	w := &Writer{path: path}
	if err := w.writeEmptyHeader(); err != nil {
		return nil, err
	}
	return w, nil
}

// Open attaches to an existing project file for writing (e.g. a writer
// reopening a project it previously closed).
func Open(path string) (*Writer, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("opening project file %s: %w", path, pcap.ErrNotFound)
		}
		return nil, fmt.Errorf("opening project file %s: %w", path, err)
	}
	return &Writer{path: path}, nil
}

func (w *Writer) writeEmptyHeader() error {
	h := codec.NewProjectHeader()
	h.TimeIndexOffset = codec.ProjectHeaderSize
	return w.WriteHeader(h)
}

// WriteHeader writes h's 32 bytes at offset 0. Safe to call repeatedly;
// it re-seeks to 0 each time rather than assuming a fresh file.
func (w *Writer) WriteHeader(h codec.ProjectHeader) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening project file %s: %w", w.path, err)
	}
	defer f.Close()

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seeking project file %s: %w", w.path, err)
	}
	if _, err := f.Write(h.ToBytes()); err != nil {
		return fmt.Errorf("writing project header to %s: %w", w.path, err)
	}
	return nil
}

// WriteAllIndices is the finalization primitive (spec §4.5): it builds
// the provisional header, serializes header + file entries + time index
// + per-file offset indexes (in fileEntries order) into one buffer,
// computes the CRC-32 of that buffer with the header_crc field zeroed,
// patches the field, and atomically replaces the project file with it.
func (w *Writer) WriteAllIndices(fileEntries []codec.FileEntry, timeIndices []codec.TimeIndexEntry, fileIndices map[string][]codec.OffsetIndexEntry, indexIntervalMs uint16) error {
	var totalIndexCount uint32
	for _, fe := range fileEntries {
		totalIndexCount += fe.IndexCount
	}

	header := codec.ProjectHeader{
		Magic:           codec.ProjectMagic,
		Major:           codec.ProjectVersionMajor,
		Minor:           codec.ProjectVersionMinor,
		FileEntryOffset: codec.ProjectHeaderSize,
		FileCount:       uint16(len(fileEntries)),
		TimeIndexOffset: codec.ProjectHeaderSize + uint32(len(fileEntries))*codec.FileEntrySize,
		IndexIntervalMs: indexIntervalMs,
		TotalIndexCount: totalIndexCount,
	}

	buf := &writerseeker.WriterSeeker{}

	if _, err := buf.Write(header.ToBytes()); err != nil {
		return fmt.Errorf("serializing project header: %w", err)
	}

	for _, fe := range fileEntries {
		b, err := fe.ToBytes()
		if err != nil {
			return fmt.Errorf("serializing file entry %d: %w", fe.FileID, err)
		}
		if _, err := buf.Write(b); err != nil {
			return fmt.Errorf("writing file entry %d: %w", fe.FileID, err)
		}
	}

	for _, ti := range timeIndices {
		if _, err := buf.Write(ti.ToBytes()); err != nil {
			return fmt.Errorf("writing time index entry: %w", err)
		}
	}

	for _, fe := range fileEntries {
		for _, oi := range fileIndices[fe.RelativePath] {
			if _, err := buf.Write(oi.ToBytes()); err != nil {
				return fmt.Errorf("writing offset index entry for %s: %w", fe.RelativePath, err)
			}
		}
	}

	reader, err := buf.Reader()
	if err != nil {
		return fmt.Errorf("rewinding project buffer: %w", err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("reading project buffer: %w", err)
	}

	binary.LittleEndian.PutUint32(body[24:28], 0)
	crc := codec.Checksum(body)
	binary.LittleEndian.PutUint32(body[24:28], crc)

	pending, err := renameio.TempFile("", w.path)
	if err != nil {
		return fmt.Errorf("preparing atomic write to %s: %w", w.path, err)
	}
	defer pending.Cleanup()

	if _, err := pending.Write(body); err != nil {
		return fmt.Errorf("writing project file %s: %w", w.path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("finalizing project file %s: %w", w.path, err)
	}

	return nil
}
