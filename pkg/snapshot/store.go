package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-retention/pkg/metafile"
	"github.com/paulschiretz/pgl-retention/pkg/plog"
	"github.com/paulschiretz/pgl-retention/pkg/util"
)

// Store lists the snapshots below a repository base directory.
type Store struct {
	absBasePath    string
	snapshotSubDir string
	readLimit      int
}

// NewStore returns a store for <absBasePath>/<snapshotSubDir>. readLimit bounds
// the number of metafiles read concurrently; values below 1 mean 1.
func NewStore(absBasePath, snapshotSubDir string, readLimit int) *Store {
	if readLimit < 1 {
		readLimit = 1
	}
	return &Store{
		absBasePath:    absBasePath,
		snapshotSubDir: snapshotSubDir,
		readLimit:      readLimit,
	}
}

// Dir returns the absolute snapshot directory.
func (s *Store) Dir() string {
	return filepath.Join(s.absBasePath, s.snapshotSubDir)
}

// AbsPath returns the absolute directory of a scanned SID.
func (s *Store) AbsPath(sid SID) string {
	return util.DenormalizePath(filepath.Join(s.absBasePath, sid.RelPathKey))
}

// Scan returns all snapshots sorted newest first. A missing snapshot directory
// yields an empty result. Entries whose names are not SIDs are skipped.
func (s *Store) Scan(ctx context.Context) ([]SID, error) {
	dir := s.Dir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			plog.Debug("Snapshot directory does not exist yet", "path", dir)
			return []SID{}, nil
		}
		return nil, fmt.Errorf("failed to read snapshot directory %s: %w", dir, err)
	}

	var candidates []SID
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sid, err := ParseID(entry.Name())
		if err != nil {
			plog.Warn("Skipping directory, not a snapshot id", "directory", entry.Name())
			continue
		}
		sid.RelPathKey = util.NormalizePath(filepath.Join(s.snapshotSubDir, entry.Name()))
		candidates = append(candidates, sid)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.readLimit)
	for i := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			candidates[i] = s.applyMetafile(candidates[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	SortNewestFirst(candidates)
	return candidates, nil
}

// applyMetafile merges the optional metafile of a snapshot into its SID.
func (s *Store) applyMetafile(sid SID) SID {
	content, ok, err := metafile.ReadOptional(s.AbsPath(sid))
	if err != nil {
		// A snapshot that cannot be proven healthy is not preferred by the bucket rules.
		plog.Warn("Treating snapshot as unhealthy, metafile is unreadable", "snapshot", sid.ID(), "error", err)
		sid.Healthy = false
		return sid
	}
	if !ok {
		return sid
	}
	sid.Name = content.Name
	sid.Healthy = !content.Failed
	return sid
}
