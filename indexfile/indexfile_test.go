package indexfile

import (
	"path/filepath"
	"testing"

	"github.com/Zoranner/pcapfile/codec"
)

func TestWriteAllIndicesThenReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.pcap")

	w, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}

	fileEntries := []codec.FileEntry{
		{FileID: 1, RelativePath: "data_a.pata", StartTimestamp: 0, EndTimestamp: 9, IndexCount: 10},
		{FileID: 2, RelativePath: "data_b.pata", StartTimestamp: 10, EndTimestamp: 19, IndexCount: 10},
	}
	timeIndices := []codec.TimeIndexEntry{
		{FileID: 1, Timestamp: 0},
		{FileID: 2, Timestamp: 10},
	}
	fileIndices := map[string][]codec.OffsetIndexEntry{
		"data_a.pata": makeOffsets(10, 16),
		"data_b.pata": makeOffsets(10, 16),
	}

	if err := w.WriteAllIndices(fileEntries, timeIndices, fileIndices, 100); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	if r.FileCount() != 2 {
		t.Fatalf("FileCount() = %d, want 2", r.FileCount())
	}
	if r.TotalIndexCount() != 20 {
		t.Fatalf("TotalIndexCount() = %d, want 20", r.TotalIndexCount())
	}
	if r.IndexIntervalMs() != 100 {
		t.Fatalf("IndexIntervalMs() = %d, want 100", r.IndexIntervalMs())
	}
	got := r.FileEntries()
	for i, fe := range fileEntries {
		if got[i] != fe {
			t.Fatalf("file entry %d = %+v, want %+v", i, got[i], fe)
		}
	}
	gotTI := r.TimeIndices()
	for i, ti := range timeIndices {
		if gotTI[i] != ti {
			t.Fatalf("time index %d = %+v, want %+v", i, gotTI[i], ti)
		}
	}

	for _, fe := range fileEntries {
		entries, err := r.ReadFileIndices(fe.RelativePath)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != int(fe.IndexCount) {
			t.Fatalf("%s: got %d offset entries, want %d", fe.RelativePath, len(entries), fe.IndexCount)
		}
		want := fileIndices[fe.RelativePath]
		for i := range want {
			if entries[i] != want[i] {
				t.Fatalf("%s entry %d = %+v, want %+v", fe.RelativePath, i, entries[i], want[i])
			}
		}
	}

	ok, err := r.VerifyHeaderCRC()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("header CRC did not verify")
	}
}

func TestCreateWritesEmptyValidProject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.pcap")
	if _, err := Create(path); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if r.FileCount() != 0 {
		t.Fatalf("FileCount() = %d, want 0", r.FileCount())
	}
	if r.TotalIndexCount() != 0 {
		t.Fatalf("TotalIndexCount() = %d, want 0", r.TotalIndexCount())
	}
}

func makeOffsets(n int, frameSize int64) []codec.OffsetIndexEntry {
	entries := make([]codec.OffsetIndexEntry, n)
	offset := int64(16)
	for i := 0; i < n; i++ {
		entries[i] = codec.OffsetIndexEntry{Timestamp: int64(i), FileOffset: offset}
		offset += frameSize
	}
	return entries
}
