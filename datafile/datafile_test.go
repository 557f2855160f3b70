package datafile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Zoranner/pcapfile/pcap"
)

func mustPacket(t *testing.T, ts int64, payload string) *pcap.Packet {
	t.Helper()
	p, err := pcap.NewPacket(ts, []byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_test.pata")

	w, err := Create(path, 10)
	if err != nil {
		t.Fatal(err)
	}

	packets := []*pcap.Packet{
		mustPacket(t, 1000, "a"),
		mustPacket(t, 1500, "bc"),
		mustPacket(t, 2000, "def"),
	}

	var offsets []int64
	for _, p := range packets {
		off, err := w.WritePacket(p)
		if err != nil {
			t.Fatal(err)
		}
		offsets = append(offsets, off)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if offsets[0] != 16 {
		t.Fatalf("first offset = %d, want 16", offsets[0])
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			t.Fatalf("offsets not strictly increasing: %v", offsets)
		}
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for i, want := range packets {
		got, corrupt, err := r.ReadPacket()
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		if corrupt {
			t.Fatalf("packet %d unexpectedly marked corrupt", i)
		}
		if got.Timestamp != want.Timestamp || string(got.Payload) != string(want.Payload) {
			t.Fatalf("packet %d = %+v, want %+v", i, got, want)
		}
		if got.Checksum != want.Checksum {
			t.Fatalf("packet %d checksum = %#x, want %#x", i, got.Checksum, want.Checksum)
		}
	}

	if _, _, err := r.ReadPacket(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestWritePacketRejectsEmptyPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_test.pata")
	w, err := Create(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if _, err := pcap.NewPacket(0, nil); !errors.Is(err, pcap.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := w.WritePacket(&pcap.Packet{Timestamp: 0}); !errors.Is(err, pcap.ErrInvalidArgument) {
		t.Fatalf("WritePacket with empty payload: expected ErrInvalidArgument, got %v", err)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pata")
	if err := os.WriteFile(path, make([]byte, 16), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path)
	if !errors.Is(err, pcap.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestSeekAndReadPacket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_test.pata")
	w, err := Create(path, 10)
	if err != nil {
		t.Fatal(err)
	}

	var offsets []int64
	for i := 0; i < 5; i++ {
		off, err := w.WritePacket(mustPacket(t, int64(i), "payload"))
		if err != nil {
			t.Fatal(err)
		}
		offsets = append(offsets, off)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err := r.Seek(offsets[3]); err != nil {
		t.Fatal(err)
	}
	got, _, err := r.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if got.Timestamp != 3 {
		t.Fatalf("Timestamp = %d, want 3", got.Timestamp)
	}
}

func TestLenientModeSurfacesCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_test.pata")
	w, err := Create(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.WritePacket(mustPacket(t, 1, "good")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.WritePacket(mustPacket(t, 2, "also-good")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	// Corrupt one byte of the first packet's payload.
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte{'X'}, 16+16); err != nil {
		t.Fatal(err)
	}
	f.Close()

	strict, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer strict.Close()
	if _, _, err := strict.ReadPacket(); !errors.Is(err, pcap.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity under strict mode, got %v", err)
	}

	var warned []int64
	lenient, err := Open(path, WithCRCMode(CRCLenient), WithWarningCallback(func(offset int64, err error) {
		warned = append(warned, offset)
	}))
	if err != nil {
		t.Fatal(err)
	}
	defer lenient.Close()

	got, corrupt, err := lenient.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if !corrupt {
		t.Fatal("expected corrupt=true")
	}
	if got.Timestamp != 1 {
		t.Fatalf("Timestamp = %d, want 1", got.Timestamp)
	}
	if len(warned) != 1 || warned[0] != 16 {
		t.Fatalf("warning callback offsets = %v, want [16]", warned)
	}

	got2, corrupt2, err := lenient.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if corrupt2 {
		t.Fatal("second packet unexpectedly marked corrupt")
	}
	if got2.Timestamp != 2 {
		t.Fatalf("Timestamp = %d, want 2", got2.Timestamp)
	}
}
