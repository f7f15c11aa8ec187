package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulschiretz/pgl-retention/pkg/metafile"
)

func createSnapshotDir(t *testing.T, base, sub, id string, meta *metafile.MetafileContent) {
	t.Helper()
	dir := filepath.Join(base, sub, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create snapshot dir: %v", err)
	}
	if meta != nil {
		if err := metafile.Write(dir, meta); err != nil {
			t.Fatalf("failed to write metafile: %v", err)
		}
	}
}

func TestStoreScan(t *testing.T) {
	base := t.TempDir()
	createSnapshotDir(t, base, "snapshots", "20250415-100000-1", nil)
	createSnapshotDir(t, base, "snapshots", "20250417-100000-1", &metafile.MetafileContent{Name: "release"})
	createSnapshotDir(t, base, "snapshots", "20250416-100000-1", &metafile.MetafileContent{Failed: true})
	createSnapshotDir(t, base, "snapshots", "not-a-snapshot", nil)
	if err := os.WriteFile(filepath.Join(base, "snapshots", "20250414-100000-1"), []byte("file"), 0644); err != nil {
		t.Fatalf("failed to write stray file: %v", err)
	}
	corruptDir := filepath.Join(base, "snapshots", "20250413-100000-1")
	if err := os.MkdirAll(corruptDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(corruptDir, metafile.MetaFileName), []byte("{bad"), 0644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(base, "snapshots", 2)
	sids, err := store.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}

	wantIDs := []string{"20250417-100000-1", "20250416-100000-1", "20250415-100000-1", "20250413-100000-1"}
	if len(sids) != len(wantIDs) {
		t.Fatalf("expected %d snapshots, got %d: %v", len(wantIDs), len(sids), sids)
	}
	for i, id := range wantIDs {
		if sids[i].ID() != id {
			t.Errorf("index %d: expected %s, got %s", i, id, sids[i].ID())
		}
	}

	if sids[0].Name != "release" || !sids[0].Healthy {
		t.Errorf("expected named healthy snapshot, got %+v", sids[0])
	}
	if sids[1].Healthy {
		t.Error("expected failed snapshot to be unhealthy")
	}
	if !sids[2].Healthy {
		t.Error("expected snapshot without metafile to be healthy")
	}
	if sids[3].Healthy {
		t.Error("expected snapshot with corrupt metafile to be unhealthy")
	}
	if sids[2].RelPathKey != "snapshots/20250415-100000-1" {
		t.Errorf("unexpected RelPathKey %q", sids[2].RelPathKey)
	}
	if got := store.AbsPath(sids[2]); got != filepath.Join(base, "snapshots", "20250415-100000-1") {
		t.Errorf("unexpected AbsPath %q", got)
	}
}

func TestStoreScanMissingDir(t *testing.T) {
	store := NewStore(t.TempDir(), "snapshots", 4)
	sids, err := store.Scan(context.Background())
	if err != nil {
		t.Fatalf("expected no error for missing dir, got %v", err)
	}
	if len(sids) != 0 {
		t.Errorf("expected empty result, got %v", sids)
	}
}

func TestStoreScanCancelled(t *testing.T) {
	base := t.TempDir()
	createSnapshotDir(t, base, "snapshots", "20250415-100000-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewStore(base, "snapshots", 1)
	if _, err := store.Scan(ctx); err == nil {
		t.Error("expected an error for a cancelled context")
	}
}
