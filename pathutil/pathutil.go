// Package pathutil derives data-file paths and the companion data
// directory from a project-file path and a packet timestamp, and offers
// small helpers for listing and clearing that directory.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const DataFileExt = "pata"

// DataDir returns the directory a project's data files live in:
// dirname(P)/basename_no_ext(P)/
func DataDir(projectPath string) string {
	dir := filepath.Dir(projectPath)
	base := filepath.Base(projectPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, base)
}

// NewDataFilePath returns the path of a new data file named from
// timestampMs (milliseconds since the Unix epoch, UTC), in the
// data_<yyMMdd_HHmmss_fffffff>.<ext> scheme. fffffff is the sub-second
// remainder expressed in 100ns ticks (matching the original format's
// 7-digit fractional-second convention), zero-padded to 7 digits.
func NewDataFilePath(dataDir string, timestampMs int64, ext string) string {
	t := time.UnixMilli(timestampMs).UTC()
	fractionTicks := (timestampMs % 1000) * 10000
	name := fmt.Sprintf("data_%s_%07d.%s", t.Format("060102_150405"), fractionTicks, ext)
	return filepath.Join(dataDir, name)
}

// ListDataFiles returns the data files in dataDir sorted by name, which
// is chronologically equivalent given the fixed-width timestamp naming
// scheme.
func ListDataFiles(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dataDir, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), "data_") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// LatestDataFile returns the most recently created data file in dataDir,
// or "" if none exist.
func LatestDataFile(dataDir string) (string, error) {
	names, err := ListDataFiles(dataDir)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", nil
	}
	return filepath.Join(dataDir, names[len(names)-1]), nil
}

// ClearDir removes every entry of dataDir. It does not remove dataDir
// itself, only its contents; a subsequent write recreates what it needs.
func ClearDir(dataDir string) error {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", dataDir, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dataDir, e.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", e.Name(), err)
		}
	}
	return nil
}
