// Package project implements the two top-level orchestrators: Writer
// (C7) drives the data-file writer and index-file writer, maintains the
// in-memory index tables, and finalizes the project atomically on
// Close; Reader (C8) drives the index-file reader and data-file reader,
// binary-searching by time or position and switching between data files
// transparently for sequential reads.
//
// Writer is specified as strictly single-threaded (spec §4.7,
// §5): callers must serialize every mutating call themselves, the way
// the teacher's own in-memory tables (diskSSTWriter) assume a single
// writing goroutine.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Zoranner/pcapfile/codec"
	"github.com/Zoranner/pcapfile/datafile"
	"github.com/Zoranner/pcapfile/indexfile"
	"github.com/Zoranner/pcapfile/pathutil"
	"github.com/Zoranner/pcapfile/pcap"
)

// WriteStats is a snapshot of a writer's running counters.
type WriteStats struct {
	TotalSize           int64
	PacketCount         int64
	LastPacketTimestamp int64
}

// WriterOption configures a Writer at Create/Open time.
type WriterOption func(*Writer)

// WithMaxPacketsPerFile overrides datafile.DefaultMaxPacketsPerFile.
func WithMaxPacketsPerFile(n int) WriterOption {
	return func(w *Writer) { w.maxPacketsPerFile = n }
}

// WithIndexIntervalMs overrides the time-index sampling interval.
func WithIndexIntervalMs(ms uint16) WriterOption {
	return func(w *Writer) { w.indexIntervalMs = ms }
}

// WithAutoFlush overrides the default (true) of flushing after every
// WritePacket.
func WithAutoFlush(enabled bool) WriterOption {
	return func(w *Writer) { w.autoFlush = enabled }
}

// WithDataFileExt overrides the default "pata" data file extension.
func WithDataFileExt(ext string) WriterOption {
	return func(w *Writer) { w.dataFileExt = ext }
}

// Writer streams packets into rolling data files and finalizes the
// project's index on Close. Not safe for concurrent use.
type Writer struct {
	projectPath string
	dataDir     string
	idxWriter   *indexfile.Writer

	current         *datafile.Writer
	currentFileID   uint32
	currentRelPath  string
	fileEntries     []codec.FileEntry
	timeIndices     []codec.TimeIndexEntry
	fileIndices     map[string][]codec.OffsetIndexEntry

	lastIndexedTs int64
	lastPacketTs  int64
	hasWrittenAny bool
	closed        bool

	maxPacketsPerFile int
	indexIntervalMs   uint16
	autoFlush         bool
	dataFileExt       string

	stats WriteStats
}

// Create starts a brand new project at projectPath. Any existing
// companion data directory of the same name is removed first, per the
// resource-lifetime rule that prevents index/data drift across reopens.
func Create(projectPath string, opts ...WriterOption) (*Writer, error) {
	dataDir := pathutil.DataDir(projectPath)
	if err := os.RemoveAll(dataDir); err != nil {
		return nil, fmt.Errorf("clearing data directory %s: %w", dataDir, err)
	}
	if err := os.Remove(projectPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("clearing project file %s: %w", projectPath, err)
	}

	idxWriter, err := indexfile.Create(projectPath)
	if err != nil {
		return nil, err
	}

	return newWriter(projectPath, dataDir, idxWriter, opts), nil
}

// Open reopens projectPath for a fresh write session, clearing any
// existing companion data directory first (spec §5: "Re-opening a
// project for writing must first delete or move aside any existing
// companion data directory of the same name").
func Open(projectPath string, opts ...WriterOption) (*Writer, error) {
	dataDir := pathutil.DataDir(projectPath)
	if err := os.RemoveAll(dataDir); err != nil {
		return nil, fmt.Errorf("clearing data directory %s: %w", dataDir, err)
	}

	idxWriter, err := indexfile.Open(projectPath)
	if err != nil {
		return nil, err
	}
	emptyHeader := codec.NewProjectHeader()
	emptyHeader.TimeIndexOffset = codec.ProjectHeaderSize
	if err := idxWriter.WriteHeader(emptyHeader); err != nil {
		return nil, err
	}

	return newWriter(projectPath, dataDir, idxWriter, opts), nil
}

func newWriter(projectPath, dataDir string, idxWriter *indexfile.Writer, opts []WriterOption) *Writer {
	w := &Writer{
		projectPath:       projectPath,
		dataDir:           dataDir,
		idxWriter:         idxWriter,
		fileIndices:       make(map[string][]codec.OffsetIndexEntry),
		maxPacketsPerFile: datafile.DefaultMaxPacketsPerFile,
		autoFlush:         true,
		dataFileExt:       pathutil.DataFileExt,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// WritePacket appends p, rolling to a new data file first if the current
// one has reached its packet-count ceiling (or none has been opened
// yet), and samples the time index per the configured interval.
func (w *Writer) WritePacket(p *pcap.Packet) error {
	if w.closed {
		return fmt.Errorf("project %s is closed: %w", w.projectPath, pcap.ErrInvalidState)
	}
	if p == nil {
		return fmt.Errorf("nil packet: %w", pcap.ErrInvalidArgument)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if w.hasWrittenAny && p.Timestamp < w.lastPacketTs {
		return fmt.Errorf("packet timestamp %d precedes last written timestamp %d: %w", p.Timestamp, w.lastPacketTs, pcap.ErrInvalidArgument)
	}

	if !w.hasWrittenAny || w.current.IsFull() {
		if w.current != nil {
			if err := w.current.Close(); err != nil {
				return fmt.Errorf("sealing data file %s: %w", w.current.Path(), err)
			}
		}
		if err := w.rollToNewFile(p.Timestamp); err != nil {
			return err
		}
	}

	offset, err := w.current.WritePacket(p)
	if err != nil {
		return fmt.Errorf("writing packet: %w", err)
	}

	w.fileIndices[w.currentRelPath] = append(w.fileIndices[w.currentRelPath], codec.OffsetIndexEntry{
		Timestamp:  p.Timestamp,
		FileOffset: offset,
	})

	firstTimeIndexSample := len(w.timeIndices) == 0
	if firstTimeIndexSample || p.Timestamp-w.lastIndexedTs >= int64(w.indexIntervalMs) {
		w.timeIndices = append(w.timeIndices, codec.TimeIndexEntry{FileID: w.currentFileID, Timestamp: p.Timestamp})
		w.lastIndexedTs = p.Timestamp
	}

	entry := &w.fileEntries[len(w.fileEntries)-1]
	entry.EndTimestamp = p.Timestamp
	entry.IndexCount = uint32(len(w.fileIndices[w.currentRelPath]))

	w.stats.TotalSize += int64(codec.FrameHeaderSize) + int64(len(p.Payload))
	w.stats.PacketCount++
	w.stats.LastPacketTimestamp = p.Timestamp
	w.lastPacketTs = p.Timestamp
	w.hasWrittenAny = true

	if w.autoFlush {
		if err := w.current.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// WritePackets writes each packet in order, stopping at the first error.
func (w *Writer) WritePackets(packets []*pcap.Packet) error {
	for i, p := range packets {
		if err := w.WritePacket(p); err != nil {
			return fmt.Errorf("packet %d: %w", i, err)
		}
	}
	return nil
}

func (w *Writer) rollToNewFile(firstTimestamp int64) error {
	if err := os.MkdirAll(w.dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", w.dataDir, err)
	}

	path := pathutil.NewDataFilePath(w.dataDir, firstTimestamp, w.dataFileExt)
	dw, err := datafile.Create(path, w.maxPacketsPerFile)
	if err != nil {
		return err
	}

	relPath, err := filepath.Rel(filepath.Dir(w.projectPath), path)
	if err != nil {
		relPath = path
	}

	w.currentFileID++
	w.current = dw
	w.currentRelPath = relPath
	w.fileEntries = append(w.fileEntries, codec.FileEntry{
		FileID:         w.currentFileID,
		RelativePath:   relPath,
		StartTimestamp: firstTimestamp,
		EndTimestamp:   firstTimestamp,
	})
	if _, ok := w.fileIndices[relPath]; !ok {
		w.fileIndices[relPath] = nil
	}
	return nil
}

// Flush flushes the current data file's buffered writes to the OS.
func (w *Writer) Flush() error {
	if w.current == nil {
		return nil
	}
	return w.current.Flush()
}

// Stats returns a snapshot of the writer's running counters.
func (w *Writer) Stats() WriteStats { return w.stats }

// Close seals the current data file and, if any packet was written,
// finalizes the project's index atomically. Idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.current != nil {
		if err := w.current.Close(); err != nil {
			return fmt.Errorf("closing data file %s: %w", w.current.Path(), err)
		}
	}

	if !w.hasWrittenAny {
		return nil
	}

	for i := range w.fileEntries {
		fe := &w.fileEntries[i]
		fe.IndexCount = uint32(len(w.fileIndices[fe.RelativePath]))
	}

	if err := w.idxWriter.WriteAllIndices(w.fileEntries, w.timeIndices, w.fileIndices, w.indexIntervalMs); err != nil {
		return fmt.Errorf("finalizing project %s: %w", w.projectPath, err)
	}
	return nil
}
