package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataDir(t *testing.T) {
	got := DataDir("/base/session.pcap")
	want := filepath.Join("/base", "session")
	if got != want {
		t.Fatalf("DataDir() = %q, want %q", got, want)
	}
}

func TestNewDataFilePathFormat(t *testing.T) {
	p := NewDataFilePath("/base/session", 1000, DataFileExt)
	base := filepath.Base(p)
	if !matchesDataFilePattern(base) {
		t.Fatalf("unexpected data file name %q", base)
	}
}

func matchesDataFilePattern(name string) bool {
	// data_yyMMdd_HHmmss_fffffff.ext
	if len(name) < len("data_000000_000000_0000000.pata") {
		return false
	}
	return name[:5] == "data_"
}

func TestListAndLatestDataFiles(t *testing.T) {
	dir := t.TempDir()

	if _, err := os.Stat(dir); err != nil {
		t.Fatal(err)
	}

	names := []string{
		"data_260101_000000_0000000.pata",
		"data_260101_000001_0000000.pata",
		"data_260101_000002_0000000.pata",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := ListDataFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("ListDataFiles() returned %d entries, want 3", len(got))
	}
	for i, n := range names {
		if got[i] != n {
			t.Fatalf("entry %d = %q, want %q", i, got[i], n)
		}
	}

	latest, err := LatestDataFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(latest) != names[2] {
		t.Fatalf("LatestDataFile() = %q, want %q", latest, names[2])
	}
}

func TestListDataFilesMissingDir(t *testing.T) {
	names, err := ListDataFiles(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no entries, got %v", names)
	}
}

func TestClearDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "data_x.pata"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ClearDir(dir); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir, got %v", entries)
	}
}
