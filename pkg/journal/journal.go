// Package journal keeps a compressed audit trail of prune runs.
//
// Every run writes one JSON lines file into the journal directory, named
// <start>-<run id>.jsonl.<zst|gz>, with one Entry per decision.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/paulschiretz/pgl-retention/pkg/hints"
	"github.com/paulschiretz/pgl-retention/pkg/retention"
	"github.com/paulschiretz/pgl-retention/pkg/util"
)

const nameTimeLayout = "20060102-150405"

// ErrDisabled is returned when journaling is switched off.
var ErrDisabled = hints.New("journal is disabled")

// Entry records one decision of a prune run.
type Entry struct {
	RunID    string           `json:"runId"`
	Time     time.Time        `json:"time"`
	Snapshot string           `json:"snapshot"`
	Name     string           `json:"name,omitempty"`
	Action   retention.Action `json:"action"`
	Rule     retention.Rule   `json:"rule"`
	Error    string           `json:"error,omitempty"`
}

// Info describes a journal file on disk.
type Info struct {
	Path    string
	RunID   string
	Started time.Time
	Format  Format
}

// NewRunID returns a fresh identifier for a prune run.
func NewRunID() string {
	return uuid.NewString()
}

// FileName returns the journal file name for a run.
func FileName(started time.Time, runID string, format Format) string {
	return started.UTC().Format(nameTimeLayout) + "-" + runID + format.Ext()
}

// Write stores entries as a new journal file in absDir and returns its path.
// The file appears atomically.
func Write(absDir string, started time.Time, runID string, entries []Entry, format Format) (path string, retErr error) {
	if err := os.MkdirAll(absDir, util.UserWritableDirPerms); err != nil {
		return "", fmt.Errorf("could not create journal directory %s: %w", absDir, err)
	}

	finalPath := filepath.Join(absDir, FileName(started, runID, format))
	tmp, err := os.CreateTemp(absDir, ".journal-*.tmp")
	if err != nil {
		return "", fmt.Errorf("could not create temporary journal file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err := encode(tmp, entries, format); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("could not sync journal file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("could not close journal file: %w", err)
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		return "", fmt.Errorf("could not move journal into place: %w", err)
	}
	return finalPath, nil
}

func encode(w io.Writer, entries []Entry, format Format) (retErr error) {
	bufWriter := bufio.NewWriter(w)

	var compressedWriter io.WriteCloser
	switch format {
	case Zst:
		zw, err := zstd.NewWriter(bufWriter, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		compressedWriter = zw
	case Gz:
		compressedWriter = pgzip.NewWriter(bufWriter)
	default:
		return fmt.Errorf("unsupported journal format %s", format)
	}

	defer func() {
		if err := compressedWriter.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("compressed writer close failed: %w", err)
		}
		if err := bufWriter.Flush(); err != nil && retErr == nil {
			retErr = fmt.Errorf("buffer flush failed: %w", err)
		}
	}()

	enc := json.NewEncoder(compressedWriter)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("could not encode journal entry for %s: %w", e.Snapshot, err)
		}
	}
	return nil
}

// Read decodes all entries of a journal file. The format is taken from the extension.
func Read(path string) ([]Entry, error) {
	format, ok := formatFromName(filepath.Base(path))
	if !ok {
		return nil, fmt.Errorf("not a journal file: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader
	switch format {
	case Gz:
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("could not open gzip journal %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	case Zst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("could not open zstd journal %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	var entries []Entry
	dec := json.NewDecoder(r)
	for {
		var e Entry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not decode journal %s: %w", path, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// List returns the journals in absDir, newest first. A missing directory yields no journals.
func List(absDir string) ([]Info, error) {
	dirEntries, err := os.ReadDir(absDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read journal directory %s: %w", absDir, err)
	}

	var infos []Info
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		info, ok := parseName(de.Name())
		if !ok {
			continue
		}
		info.Path = filepath.Join(absDir, de.Name())
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].Started.Equal(infos[j].Started) {
			return infos[i].Started.After(infos[j].Started)
		}
		return infos[i].RunID > infos[j].RunID
	})
	return infos, nil
}

// Prune removes all but the newest keep journals and returns how many were removed.
// keep < 1 disables pruning.
func Prune(absDir string, keep int) (int, error) {
	if keep < 1 {
		return 0, nil
	}
	infos, err := List(absDir)
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, info := range infos[min(keep, len(infos)):] {
		if err := os.Remove(info.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func formatFromName(name string) (Format, bool) {
	for _, f := range []Format{Zst, Gz} {
		if strings.HasSuffix(name, f.Ext()) {
			return f, true
		}
	}
	return "", false
}

func parseName(name string) (Info, bool) {
	format, ok := formatFromName(name)
	if !ok {
		return Info{}, false
	}
	stem := strings.TrimSuffix(name, format.Ext())
	if len(stem) < len(nameTimeLayout)+2 || stem[len(nameTimeLayout)] != '-' {
		return Info{}, false
	}
	started, err := time.ParseInLocation(nameTimeLayout, stem[:len(nameTimeLayout)], time.UTC)
	if err != nil {
		return Info{}, false
	}
	runID := stem[len(nameTimeLayout)+1:]
	if _, err := uuid.Parse(runID); err != nil {
		return Info{}, false
	}
	return Info{RunID: runID, Started: started, Format: format}, true
}
