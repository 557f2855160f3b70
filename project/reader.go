package project

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/Zoranner/pcapfile/codec"
	"github.com/Zoranner/pcapfile/datafile"
	"github.com/Zoranner/pcapfile/indexfile"
	"github.com/Zoranner/pcapfile/pcap"
)

// ReaderOption configures a Reader at Open time.
type ReaderOption func(*Reader)

// WithReaderCRCMode overrides the default strict CRC policy.
func WithReaderCRCMode(mode datafile.CRCMode) ReaderOption {
	return func(r *Reader) { r.crcMode = mode }
}

// WithReaderWarningCallback registers a callback invoked (in
// datafile.CRCLenient mode) whenever a packet's checksum fails to
// verify, in addition to the position being recorded in
// CorruptedPositions.
func WithReaderWarningCallback(fn func(offset int64, err error)) ReaderOption {
	return func(r *Reader) { r.onWarn = fn }
}

// Reader opens a project and serves sequential iteration, positional
// lookup, and time-based seek, switching between data files
// transparently.
type Reader struct {
	projectPath string
	idxReader   *indexfile.Reader

	currentFileIdx  int
	currentDataFile *datafile.Reader
	globalPos       int64

	crcMode   datafile.CRCMode
	onWarn    func(offset int64, err error)
	corrupted *bitset.BitSet
}

// Open opens projectPath and eagerly loads its header and file/time
// index tables; per-file offset index tables load lazily.
func Open(projectPath string, opts ...ReaderOption) (*Reader, error) {
	idxReader, err := indexfile.Open(projectPath)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		projectPath:    projectPath,
		idxReader:      idxReader,
		currentFileIdx: -1,
		crcMode:        datafile.CRCStrict,
		corrupted:      bitset.New(0),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// PacketCount returns the total number of packets recorded in the
// project.
func (r *Reader) PacketCount() int64 { return int64(r.idxReader.TotalIndexCount()) }

// FileCount returns the number of data files the project has.
func (r *Reader) FileCount() int { return r.idxReader.FileCount() }

// StartTime returns the timestamp of the first packet written, and
// false if the project is empty.
func (r *Reader) StartTime() (int64, bool) {
	entries := r.idxReader.FileEntries()
	if len(entries) == 0 {
		return 0, false
	}
	return entries[0].StartTimestamp, true
}

// EndTime returns the timestamp of the last packet written, and false
// if the project is empty.
func (r *Reader) EndTime() (int64, bool) {
	entries := r.idxReader.FileEntries()
	if len(entries) == 0 {
		return 0, false
	}
	return entries[len(entries)-1].EndTimestamp, true
}

// CorruptedPositions returns the set of global packet positions whose
// checksum failed to verify during a lenient-mode read so far.
func (r *Reader) CorruptedPositions() *bitset.BitSet { return r.corrupted }

func (r *Reader) openFileAt(fileIdx int) error {
	if r.currentDataFile != nil {
		if err := r.currentDataFile.Close(); err != nil {
			return err
		}
		r.currentDataFile = nil
	}

	entries := r.idxReader.FileEntries()
	if fileIdx < 0 || fileIdx >= len(entries) {
		return fmt.Errorf("file index %d out of range: %w", fileIdx, pcap.ErrInvalidArgument)
	}

	path := filepath.Join(filepath.Dir(r.projectPath), entries[fileIdx].RelativePath)
	opts := []datafile.Option{datafile.WithCRCMode(r.crcMode)}
	if r.onWarn != nil {
		opts = append(opts, datafile.WithWarningCallback(r.onWarn))
	}
	dr, err := datafile.Open(path, opts...)
	if err != nil {
		return err
	}
	r.currentDataFile = dr
	r.currentFileIdx = fileIdx
	return nil
}

// ReadNextPacket returns the next packet in sequence, transparently
// switching to the next data file when the current one ends, and
// io.EOF once every file has been exhausted.
func (r *Reader) ReadNextPacket() (*pcap.Packet, error) {
	entries := r.idxReader.FileEntries()
	if len(entries) == 0 {
		return nil, io.EOF
	}
	if r.currentDataFile == nil {
		if err := r.openFileAt(0); err != nil {
			return nil, err
		}
	}

	for {
		pkt, corrupt, err := r.currentDataFile.ReadPacket()
		if err == io.EOF {
			next := r.currentFileIdx + 1
			if next >= len(entries) {
				return nil, io.EOF
			}
			if err := r.openFileAt(next); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		if corrupt {
			r.corrupted.Set(uint(r.globalPos))
		}
		r.globalPos++
		return pkt, nil
	}
}

// ReadPackets reads up to n packets, stopping early (without error) at
// end of stream. A nil/empty result with nil error signals end of
// stream, matching the replay pipeline's reader-task contract.
func (r *Reader) ReadPackets(n int) ([]*pcap.Packet, error) {
	packets := make([]*pcap.Packet, 0, n)
	for i := 0; i < n; i++ {
		pkt, err := r.ReadNextPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return packets, err
		}
		packets = append(packets, pkt)
	}
	return packets, nil
}

// SeekToTime positions the reader at the last packet whose timestamp is
// <= t, using the project-level time index (then the file entries' start
// timestamps) to pick a data file and that file's offset index to pick a
// byte offset. Returns false if t falls outside [StartTime, EndTime].
func (r *Reader) SeekToTime(t int64) (bool, error) {
	entries := r.idxReader.FileEntries()
	if len(entries) == 0 {
		return false, nil
	}
	start, end := entries[0].StartTimestamp, entries[len(entries)-1].EndTimestamp
	if t < start || t > end {
		return false, nil
	}

	timeIndices := r.idxReader.TimeIndices()
	tIdx := sort.Search(len(timeIndices), func(i int) bool { return timeIndices[i].Timestamp > t }) - 1
	if tIdx < 0 {
		tIdx = 0
	}
	fileIdx := int(timeIndices[tIdx].FileID) - 1
	// The time index is sampled, so a later file may still start at or
	// before t.
	for fileIdx+1 < len(entries) && entries[fileIdx+1].StartTimestamp <= t {
		fileIdx++
	}

	if err := r.openFileAt(fileIdx); err != nil {
		return false, err
	}

	offsets, err := r.idxReader.ReadFileIndices(entries[fileIdx].RelativePath)
	if err != nil {
		return false, err
	}
	oIdx := sort.Search(len(offsets), func(i int) bool { return offsets[i].Timestamp > t }) - 1
	if oIdx < 0 {
		oIdx = 0
	}
	if err := r.currentDataFile.Seek(offsets[oIdx].FileOffset); err != nil {
		return false, err
	}

	r.globalPos = globalPositionOf(entries, fileIdx, oIdx)
	return true, nil
}

// SeekToPosition positions the reader at the n-th packet (0-based).
// Returns false if n is out of range.
func (r *Reader) SeekToPosition(n int64) (bool, error) {
	total := int64(r.idxReader.TotalIndexCount())
	if n < 0 || n >= total {
		return false, nil
	}

	entries := r.idxReader.FileEntries()
	var acc int64
	fileIdx, local := -1, int64(0)
	for i, fe := range entries {
		if n < acc+int64(fe.IndexCount) {
			fileIdx = i
			local = n - acc
			break
		}
		acc += int64(fe.IndexCount)
	}
	if fileIdx == -1 {
		return false, nil
	}

	if err := r.openFileAt(fileIdx); err != nil {
		return false, err
	}

	offsets, err := r.idxReader.ReadFileIndices(entries[fileIdx].RelativePath)
	if err != nil {
		return false, err
	}
	if err := r.currentDataFile.Seek(offsets[local].FileOffset); err != nil {
		return false, err
	}

	r.globalPos = n
	return true, nil
}

// ReadPacketAt seeks to position n and reads the packet there.
func (r *Reader) ReadPacketAt(n int64) (*pcap.Packet, error) {
	ok, err := r.SeekToPosition(n)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("position %d out of range [0, %d): %w", n, r.PacketCount(), pcap.ErrInvalidArgument)
	}
	return r.ReadNextPacket()
}

// Reset rewinds the reader to the beginning of the project.
func (r *Reader) Reset() error {
	if r.currentDataFile != nil {
		if err := r.currentDataFile.Close(); err != nil {
			return err
		}
		r.currentDataFile = nil
	}
	r.currentFileIdx = -1
	r.globalPos = 0
	return nil
}

// Close releases the current data file handle. Idempotent.
func (r *Reader) Close() error {
	if r.currentDataFile == nil {
		return nil
	}
	err := r.currentDataFile.Close()
	r.currentDataFile = nil
	return err
}

func globalPositionOf(entries []codec.FileEntry, fileIdx int, localIdx int) int64 {
	var global int64
	for i := 0; i < fileIdx; i++ {
		global += int64(entries[i].IndexCount)
	}
	return global + int64(localIdx)
}
