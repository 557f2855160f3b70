package indexfile

import (
	"fmt"
	"os"
	"sync"

	"github.com/Zoranner/pcapfile/codec"
	"github.com/Zoranner/pcapfile/pcap"
)

// Reader parses a project file's header and tables, loading each data
// file's offset index table lazily on first request.
type Reader struct {
	path   string
	header codec.ProjectHeader

	fileEntries []codec.FileEntry
	timeIndices []codec.TimeIndexEntry

	mu          sync.Mutex
	offsetCache map[string][]codec.OffsetIndexEntry
	offsetBase  map[string]int64 // byte offset of each file's offset-index table
}

// Open reads and validates the project header and its fixed tables.
// Per-file offset index tables are not loaded until ReadFileIndices asks
// for them.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("opening project file %s: %w", path, pcap.ErrNotFound)
		}
		return nil, fmt.Errorf("opening project file %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	headerBytes := make([]byte, codec.ProjectHeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	header, err := codec.ProjectHeaderFromBytes(headerBytes)
	if err != nil {
		return nil, err
	}
	if header.Major != codec.ProjectVersionMajor {
		return nil, fmt.Errorf("project file %s has unsupported major version %d: %w", path, header.Major, pcap.ErrInvalidFormat)
	}

	r := &Reader{
		path:        path,
		header:      header,
		offsetCache: make(map[string][]codec.OffsetIndexEntry),
		offsetBase:  make(map[string]int64),
	}

	r.fileEntries, err = readFileEntries(f, int64(header.FileEntryOffset), int(header.FileCount))
	if err != nil {
		return nil, err
	}

	var offsetTablesSize int64
	for _, fe := range r.fileEntries {
		offsetTablesSize += int64(fe.IndexCount) * codec.OffsetIndexEntrySize
	}

	timeIndexTableSize := stat.Size() - int64(header.TimeIndexOffset) - offsetTablesSize
	if timeIndexTableSize < 0 || timeIndexTableSize%codec.TimeIndexEntrySize != 0 {
		return nil, fmt.Errorf("project file %s has an inconsistent time index table: %w", path, pcap.ErrInvalidFormat)
	}
	timeIndexCount := int(timeIndexTableSize / codec.TimeIndexEntrySize)

	r.timeIndices, err = readTimeIndices(f, int64(header.TimeIndexOffset), timeIndexCount)
	if err != nil {
		return nil, err
	}

	base := int64(header.TimeIndexOffset) + timeIndexTableSize
	for _, fe := range r.fileEntries {
		r.offsetBase[fe.RelativePath] = base
		base += int64(fe.IndexCount) * codec.OffsetIndexEntrySize
	}

	return r, nil
}

func readFileEntries(f *os.File, offset int64, count int) ([]codec.FileEntry, error) {
	if count == 0 {
		return nil, nil
	}
	buf := make([]byte, count*codec.FileEntrySize)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("reading file entries: %w", err)
	}
	entries := make([]codec.FileEntry, count)
	for i := range entries {
		e, err := codec.FileEntryFromBytes(buf[i*codec.FileEntrySize : (i+1)*codec.FileEntrySize])
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}
	return entries, nil
}

func readTimeIndices(f *os.File, offset int64, count int) ([]codec.TimeIndexEntry, error) {
	if count == 0 {
		return nil, nil
	}
	buf := make([]byte, count*codec.TimeIndexEntrySize)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("reading time indices: %w", err)
	}
	entries := make([]codec.TimeIndexEntry, count)
	for i := range entries {
		e, err := codec.TimeIndexEntryFromBytes(buf[i*codec.TimeIndexEntrySize : (i+1)*codec.TimeIndexEntrySize])
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}
	return entries, nil
}

// FileEntries returns the project's file entries in insertion order.
func (r *Reader) FileEntries() []codec.FileEntry { return r.fileEntries }

// TimeIndices returns the project's sampled time index in insertion order.
func (r *Reader) TimeIndices() []codec.TimeIndexEntry { return r.timeIndices }

// FileCount returns the number of data files the project has.
func (r *Reader) FileCount() int { return len(r.fileEntries) }

// TotalIndexCount returns the sum of every file's packet count.
func (r *Reader) TotalIndexCount() uint32 { return r.header.TotalIndexCount }

// IndexIntervalMs returns the minimum sampling interval used to build
// the time index.
func (r *Reader) IndexIntervalMs() uint16 { return r.header.IndexIntervalMs }

// ReadFileIndices returns relativePath's offset index table, loading and
// caching it on first request.
func (r *Reader) ReadFileIndices(relativePath string) ([]codec.OffsetIndexEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.offsetCache[relativePath]; ok {
		return cached, nil
	}

	var entry *codec.FileEntry
	for i := range r.fileEntries {
		if r.fileEntries[i].RelativePath == relativePath {
			entry = &r.fileEntries[i]
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("no such file entry %q: %w", relativePath, pcap.ErrNotFound)
	}

	offset, count := r.offsetBase[relativePath], int(entry.IndexCount)
	entries, err := r.readOffsetIndexTable(offset, count)
	if err != nil {
		return nil, err
	}
	r.offsetCache[relativePath] = entries
	return entries, nil
}

func (r *Reader) readOffsetIndexTable(offset int64, count int) ([]codec.OffsetIndexEntry, error) {
	if count == 0 {
		return nil, nil
	}
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", r.path, err)
	}
	defer f.Close()

	buf := make([]byte, count*codec.OffsetIndexEntrySize)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("reading offset index table at %d: %w", offset, err)
	}

	entries := make([]codec.OffsetIndexEntry, count)
	for i := range entries {
		e, err := codec.OffsetIndexEntryFromBytes(buf[i*codec.OffsetIndexEntrySize : (i+1)*codec.OffsetIndexEntrySize])
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}
	return entries, nil
}

// VerifyHeaderCRC recomputes the CRC-32 over the whole project file with
// the header_crc field zeroed and compares it to the stored value.
func (r *Reader) VerifyHeaderCRC() (bool, error) {
	body, err := os.ReadFile(r.path)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", r.path, err)
	}
	if len(body) < codec.ProjectHeaderSize {
		return false, fmt.Errorf("project file %s shorter than header: %w", r.path, pcap.ErrInvalidFormat)
	}

	stored := r.header.HeaderCRC
	body[24], body[25], body[26], body[27] = 0, 0, 0, 0
	return codec.Checksum(body) == stored, nil
}
