// Package codec converts the fixed-layout on-disk structures of a
// project — frame headers, file headers, the project header, and the
// three index-entry types — to and from their little-endian byte
// representations, and provides the CRC-32 used throughout the format.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/Zoranner/pcapfile/pcap"
)

// Magic numbers and versions. Normative: every on-disk file this package
// reads or writes begins with one of these.
const (
	DataFileMagic = 0x50415441 // "PATA"
	ProjectMagic  = 0xA1B2C3D4

	DataFileVersionMajor = 2
	DataFileVersionMinor = 4

	ProjectVersionMajor = 2
	ProjectVersionMinor = 4
)

// Fixed record sizes, in bytes.
const (
	FrameHeaderSize      = 16
	DataFileHeaderSize   = 16
	ProjectHeaderSize    = 32
	FileEntrySize        = 286
	TimeIndexEntrySize   = 12
	OffsetIndexEntrySize = 16

	maxRelativePathLen = 255
	relativePathSlot   = 256
)

func shortRead(kind string, got, want int) error {
	return fmt.Errorf("%s: %d bytes is shorter than the required %d: %w", kind, got, want, pcap.ErrInvalidFormat)
}

// FrameHeader is the 16-byte header preceding every packet payload in a
// data file: {timestamp:i64, length:u32, checksum:u32}.
type FrameHeader struct {
	Timestamp int64
	Length    uint32
	Checksum  uint32
}

func (h FrameHeader) ToBytes() []byte {
	b := make([]byte, FrameHeaderSize)
	binary.LittleEndian.PutUint64(b[0:8], uint64(h.Timestamp))
	binary.LittleEndian.PutUint32(b[8:12], h.Length)
	binary.LittleEndian.PutUint32(b[12:16], h.Checksum)
	return b
}

func FrameHeaderFromBytes(b []byte) (FrameHeader, error) {
	if len(b) < FrameHeaderSize {
		return FrameHeader{}, shortRead("frame header", len(b), FrameHeaderSize)
	}
	return FrameHeader{
		Timestamp: int64(binary.LittleEndian.Uint64(b[0:8])),
		Length:    binary.LittleEndian.Uint32(b[8:12]),
		Checksum:  binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

// DataFileHeader is the 16-byte header of a data file:
// {magic:u32, major:u16, minor:u16, timezone:i32, timestamp_accuracy:u32}.
type DataFileHeader struct {
	Magic             uint32
	Major             uint16
	Minor             uint16
	Timezone          int32
	TimestampAccuracy uint32
}

func NewDataFileHeader() DataFileHeader {
	return DataFileHeader{
		Magic:             DataFileMagic,
		Major:             DataFileVersionMajor,
		Minor:             DataFileVersionMinor,
		Timezone:          0,
		TimestampAccuracy: 1, // milliseconds
	}
}

func (h DataFileHeader) ToBytes() []byte {
	b := make([]byte, DataFileHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint16(b[4:6], h.Major)
	binary.LittleEndian.PutUint16(b[6:8], h.Minor)
	binary.LittleEndian.PutUint32(b[8:12], uint32(h.Timezone))
	binary.LittleEndian.PutUint32(b[12:16], h.TimestampAccuracy)
	return b
}

func DataFileHeaderFromBytes(b []byte) (DataFileHeader, error) {
	if len(b) < DataFileHeaderSize {
		return DataFileHeader{}, shortRead("data file header", len(b), DataFileHeaderSize)
	}
	h := DataFileHeader{
		Magic:             binary.LittleEndian.Uint32(b[0:4]),
		Major:             binary.LittleEndian.Uint16(b[4:6]),
		Minor:             binary.LittleEndian.Uint16(b[6:8]),
		Timezone:          int32(binary.LittleEndian.Uint32(b[8:12])),
		TimestampAccuracy: binary.LittleEndian.Uint32(b[12:16]),
	}
	if h.Magic != DataFileMagic {
		return DataFileHeader{}, fmt.Errorf("data file magic %#x, expected %#x: %w", h.Magic, DataFileMagic, pcap.ErrInvalidFormat)
	}
	return h, nil
}

// ProjectHeader is the 32-byte header of a project file.
type ProjectHeader struct {
	Magic            uint32
	Major            uint16
	Minor            uint16
	FileEntryOffset  uint32
	FileCount        uint16
	TimeIndexOffset  uint32
	IndexIntervalMs  uint16
	TotalIndexCount  uint32
	HeaderCRC        uint32
}

func NewProjectHeader() ProjectHeader {
	return ProjectHeader{
		Magic:           ProjectMagic,
		Major:           ProjectVersionMajor,
		Minor:           ProjectVersionMinor,
		FileEntryOffset: ProjectHeaderSize,
	}
}

func (h ProjectHeader) ToBytes() []byte {
	b := make([]byte, ProjectHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint16(b[4:6], h.Major)
	binary.LittleEndian.PutUint16(b[6:8], h.Minor)
	binary.LittleEndian.PutUint32(b[8:12], h.FileEntryOffset)
	binary.LittleEndian.PutUint16(b[12:14], h.FileCount)
	binary.LittleEndian.PutUint32(b[14:18], h.TimeIndexOffset)
	binary.LittleEndian.PutUint16(b[18:20], h.IndexIntervalMs)
	binary.LittleEndian.PutUint32(b[20:24], h.TotalIndexCount)
	binary.LittleEndian.PutUint32(b[24:28], h.HeaderCRC)
	// bytes [28:32) are the reserved u16 plus two pad bytes, left zero.
	return b
}

func ProjectHeaderFromBytes(b []byte) (ProjectHeader, error) {
	if len(b) < ProjectHeaderSize {
		return ProjectHeader{}, shortRead("project header", len(b), ProjectHeaderSize)
	}
	h := ProjectHeader{
		Magic:           binary.LittleEndian.Uint32(b[0:4]),
		Major:           binary.LittleEndian.Uint16(b[4:6]),
		Minor:           binary.LittleEndian.Uint16(b[6:8]),
		FileEntryOffset: binary.LittleEndian.Uint32(b[8:12]),
		FileCount:       binary.LittleEndian.Uint16(b[12:14]),
		TimeIndexOffset: binary.LittleEndian.Uint32(b[14:18]),
		IndexIntervalMs: binary.LittleEndian.Uint16(b[18:20]),
		TotalIndexCount: binary.LittleEndian.Uint32(b[20:24]),
		HeaderCRC:       binary.LittleEndian.Uint32(b[24:28]),
	}
	if h.Magic != ProjectMagic {
		return ProjectHeader{}, fmt.Errorf("project magic %#x, expected %#x: %w", h.Magic, ProjectMagic, pcap.ErrInvalidFormat)
	}
	return h, nil
}

// FileEntry is the 286-byte project-level record describing one data
// file: {file_id:u32, path_length:u16, relative_path:[256]byte,
// start_ts:i64, end_ts:i64, index_count:u32, reserved:u32}.
type FileEntry struct {
	FileID          uint32
	RelativePath    string
	StartTimestamp  int64
	EndTimestamp    int64
	IndexCount      uint32
}

func (e FileEntry) ToBytes() ([]byte, error) {
	if len(e.RelativePath) > maxRelativePathLen {
		return nil, fmt.Errorf("relative path %q exceeds %d bytes: %w", e.RelativePath, maxRelativePathLen, pcap.ErrInvalidArgument)
	}

	b := make([]byte, FileEntrySize)
	binary.LittleEndian.PutUint32(b[0:4], e.FileID)
	binary.LittleEndian.PutUint16(b[4:6], uint16(len(e.RelativePath)))
	copy(b[6:6+relativePathSlot], e.RelativePath)
	off := 6 + relativePathSlot
	binary.LittleEndian.PutUint64(b[off:off+8], uint64(e.StartTimestamp))
	binary.LittleEndian.PutUint64(b[off+8:off+16], uint64(e.EndTimestamp))
	binary.LittleEndian.PutUint32(b[off+16:off+20], e.IndexCount)
	// final 4 bytes are reserved, left zero.
	return b, nil
}

func FileEntryFromBytes(b []byte) (FileEntry, error) {
	if len(b) < FileEntrySize {
		return FileEntry{}, shortRead("file entry", len(b), FileEntrySize)
	}
	pathLen := binary.LittleEndian.Uint16(b[4:6])
	if int(pathLen) > maxRelativePathLen {
		return FileEntry{}, fmt.Errorf("file entry path length %d exceeds %d: %w", pathLen, maxRelativePathLen, pcap.ErrInvalidFormat)
	}
	path := string(b[6 : 6+int(pathLen)])
	off := 6 + relativePathSlot
	return FileEntry{
		FileID:         binary.LittleEndian.Uint32(b[0:4]),
		RelativePath:   path,
		StartTimestamp: int64(binary.LittleEndian.Uint64(b[off : off+8])),
		EndTimestamp:   int64(binary.LittleEndian.Uint64(b[off+8 : off+16])),
		IndexCount:     binary.LittleEndian.Uint32(b[off+16 : off+20]),
	}, nil
}

// TimeIndexEntry is a 12-byte (file_id:u32, timestamp_ms:i64) sample in
// the project-level time index.
type TimeIndexEntry struct {
	FileID    uint32
	Timestamp int64
}

func (e TimeIndexEntry) ToBytes() []byte {
	b := make([]byte, TimeIndexEntrySize)
	binary.LittleEndian.PutUint32(b[0:4], e.FileID)
	binary.LittleEndian.PutUint64(b[4:12], uint64(e.Timestamp))
	return b
}

func TimeIndexEntryFromBytes(b []byte) (TimeIndexEntry, error) {
	if len(b) < TimeIndexEntrySize {
		return TimeIndexEntry{}, shortRead("time index entry", len(b), TimeIndexEntrySize)
	}
	return TimeIndexEntry{
		FileID:    binary.LittleEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.LittleEndian.Uint64(b[4:12])),
	}, nil
}

// OffsetIndexEntry is a 16-byte (timestamp_ms:i64, file_offset:i64) pair
// recorded for every packet in a data file.
type OffsetIndexEntry struct {
	Timestamp  int64
	FileOffset int64
}

func (e OffsetIndexEntry) ToBytes() []byte {
	b := make([]byte, OffsetIndexEntrySize)
	binary.LittleEndian.PutUint64(b[0:8], uint64(e.Timestamp))
	binary.LittleEndian.PutUint64(b[8:16], uint64(e.FileOffset))
	return b
}

func OffsetIndexEntryFromBytes(b []byte) (OffsetIndexEntry, error) {
	if len(b) < OffsetIndexEntrySize {
		return OffsetIndexEntry{}, shortRead("offset index entry", len(b), OffsetIndexEntrySize)
	}
	return OffsetIndexEntry{
		Timestamp:  int64(binary.LittleEndian.Uint64(b[0:8])),
		FileOffset: int64(binary.LittleEndian.Uint64(b[8:16])),
	}, nil
}
