package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Zoranner/pcapfile/pcap"
)

func TestChecksumKnownAnswers(t *testing.T) {
	if got := Checksum(nil); got != 0 {
		t.Fatalf("Checksum(nil) = %#x, want 0", got)
	}
	if got := Checksum([]byte{}); got != 0 {
		t.Fatalf("Checksum(empty) = %#x, want 0", got)
	}
	if got := Checksum([]byte("123456789")); got != 0xCBF43926 {
		t.Fatalf("Checksum(123456789) = %#x, want 0xCBF43926", got)
	}
}

func TestFrameHeaderRoundTrip(t *testing.T) {
	h := FrameHeader{Timestamp: 1_234_567, Length: 42, Checksum: 0xDEADBEEF}
	b := h.ToBytes()
	if len(b) != FrameHeaderSize {
		t.Fatalf("ToBytes() length = %d, want %d", len(b), FrameHeaderSize)
	}
	got, err := FrameHeaderFromBytes(b)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got != h {
		t.Fatalf("round trip = %+v, want %+v", got, h)
	}
}

func TestFrameHeaderFromBytesShort(t *testing.T) {
	_, err := FrameHeaderFromBytes(make([]byte, FrameHeaderSize-1))
	if !errors.Is(err, pcap.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestDataFileHeaderRoundTrip(t *testing.T) {
	h := NewDataFileHeader()
	b := h.ToBytes()
	if len(b) != DataFileHeaderSize {
		t.Fatalf("ToBytes() length = %d, want %d", len(b), DataFileHeaderSize)
	}
	got, err := DataFileHeaderFromBytes(b)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got != h {
		t.Fatalf("round trip = %+v, want %+v", got, h)
	}
}

func TestDataFileHeaderBadMagic(t *testing.T) {
	h := NewDataFileHeader()
	h.Magic = 0x1
	_, err := DataFileHeaderFromBytes(h.ToBytes())
	if !errors.Is(err, pcap.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestProjectHeaderRoundTrip(t *testing.T) {
	h := NewProjectHeader()
	h.FileCount = 3
	h.TimeIndexOffset = 32 + 3*FileEntrySize
	h.IndexIntervalMs = 100
	h.TotalIndexCount = 25
	h.HeaderCRC = 0x12345678

	b := h.ToBytes()
	if len(b) != ProjectHeaderSize {
		t.Fatalf("ToBytes() length = %d, want %d", len(b), ProjectHeaderSize)
	}
	got, err := ProjectHeaderFromBytes(b)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got != h {
		t.Fatalf("round trip = %+v, want %+v", got, h)
	}
}

func TestProjectHeaderBadMagic(t *testing.T) {
	b := make([]byte, ProjectHeaderSize)
	_, err := ProjectHeaderFromBytes(b)
	if !errors.Is(err, pcap.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestFileEntryRoundTrip(t *testing.T) {
	e := FileEntry{
		FileID:         7,
		RelativePath:   "data_260801_120000_0000001.pata",
		StartTimestamp: 1000,
		EndTimestamp:   9000,
		IndexCount:     10,
	}
	b, err := e.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	if len(b) != FileEntrySize {
		t.Fatalf("ToBytes() length = %d, want %d", len(b), FileEntrySize)
	}
	got, err := FileEntryFromBytes(b)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got != e {
		t.Fatalf("round trip = %+v, want %+v", got, e)
	}
}

func TestFileEntryPathTooLong(t *testing.T) {
	e := FileEntry{RelativePath: string(bytes.Repeat([]byte("x"), 256))}
	if _, err := e.ToBytes(); !errors.Is(err, pcap.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestTimeIndexEntryRoundTrip(t *testing.T) {
	e := TimeIndexEntry{FileID: 2, Timestamp: 5000}
	b := e.ToBytes()
	if len(b) != TimeIndexEntrySize {
		t.Fatalf("ToBytes() length = %d, want %d", len(b), TimeIndexEntrySize)
	}
	got, err := TimeIndexEntryFromBytes(b)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got != e {
		t.Fatalf("round trip = %+v, want %+v", got, e)
	}
}

func TestOffsetIndexEntryRoundTrip(t *testing.T) {
	e := OffsetIndexEntry{Timestamp: 4242, FileOffset: 1 << 20}
	b := e.ToBytes()
	if len(b) != OffsetIndexEntrySize {
		t.Fatalf("ToBytes() length = %d, want %d", len(b), OffsetIndexEntrySize)
	}
	got, err := OffsetIndexEntryFromBytes(b)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got != e {
		t.Fatalf("round trip = %+v, want %+v", got, e)
	}
}
