package pathretentionmetrics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/paulschiretz/pgl-retention/pkg/plog"
)

func TestRetentionMetrics_Adders(t *testing.T) {
	m := &RetentionMetrics{}

	m.AddSnapshotsKept(7)
	m.AddSnapshotsDeleted(5)
	m.AddSnapshotsEvicted(1)
	m.AddSnapshotsFailed(2)

	if got := m.SnapshotsKept.Load(); got != 7 {
		t.Errorf("expected SnapshotsKept to be 7, got %d", got)
	}
	if got := m.SnapshotsDeleted.Load(); got != 5 {
		t.Errorf("expected SnapshotsDeleted to be 5, got %d", got)
	}
	if got := m.SnapshotsEvicted.Load(); got != 1 {
		t.Errorf("expected SnapshotsEvicted to be 1, got %d", got)
	}
	if got := m.SnapshotsFailed.Load(); got != 2 {
		t.Errorf("expected SnapshotsFailed to be 2, got %d", got)
	}
}

func TestRetentionMetrics_Log(t *testing.T) {
	var logBuf bytes.Buffer
	plog.SetOutput(&logBuf)
	t.Cleanup(func() { plog.SetOutput(os.Stderr) })

	m := &RetentionMetrics{}
	m.AddSnapshotsDeleted(10)
	m.AddSnapshotsFailed(3)
	m.LogSummary("Test Retention Summary")

	output := logBuf.String()
	for _, want := range []string{`msg="Test Retention Summary"`, "snapshots_deleted=10", "snapshots_failed=3", "snapshots_kept=0"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected log output to contain %q. Got: %s", want, output)
		}
	}
}

func TestRetentionMetrics_Registry(t *testing.T) {
	m := &RetentionMetrics{}
	m.AddSnapshotsKept(4)
	m.AddSnapshotsEvicted(2)

	reg := m.newRegistry(time.Unix(1700000000, 0))
	expected := `
# HELP pgl_retention_last_run_timestamp_seconds Unix timestamp of the last finished prune run.
# TYPE pgl_retention_last_run_timestamp_seconds gauge
pgl_retention_last_run_timestamp_seconds 1.7e+09
# HELP pgl_retention_snapshots Snapshots handled by the last prune run, by outcome.
# TYPE pgl_retention_snapshots gauge
pgl_retention_snapshots{outcome="deleted"} 0
pgl_retention_snapshots{outcome="evicted"} 2
pgl_retention_snapshots{outcome="failed"} 0
pgl_retention_snapshots{outcome="kept"} 4
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestRetentionMetrics_WriteTextfile(t *testing.T) {
	m := &RetentionMetrics{}
	m.AddSnapshotsDeleted(3)

	path := filepath.Join(t.TempDir(), "pgl_retention.prom")
	if err := m.WriteTextfile(path, time.Now()); err != nil {
		t.Fatalf("WriteTextfile() failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read textfile: %v", err)
	}
	if !strings.Contains(string(data), `pgl_retention_snapshots{outcome="deleted"} 3`) {
		t.Errorf("unexpected textfile content:\n%s", data)
	}
}

func TestNoopMetrics(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("NoopMetrics method panicked: %v", r)
		}
	}()

	m := &NoopMetrics{}
	m.AddSnapshotsKept(1)
	m.AddSnapshotsDeleted(1)
	m.AddSnapshotsEvicted(1)
	m.AddSnapshotsFailed(1)
	m.StartProgress("test", time.Second)
	m.StopProgress()
	m.LogSummary("test")
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom"), time.Now()); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
