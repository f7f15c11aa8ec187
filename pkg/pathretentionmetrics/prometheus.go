package pathretentionmetrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// newRegistry builds a private registry holding a point-in-time view of the counters.
func (m *RetentionMetrics) newRegistry(finished time.Time) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	snapshots := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pgl_retention_snapshots",
		Help: "Snapshots handled by the last prune run, by outcome.",
	}, []string{"outcome"})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pgl_retention_last_run_timestamp_seconds",
		Help: "Unix timestamp of the last finished prune run.",
	})

	snapshots.WithLabelValues("kept").Set(float64(m.SnapshotsKept.Load()))
	snapshots.WithLabelValues("deleted").Set(float64(m.SnapshotsDeleted.Load()))
	snapshots.WithLabelValues("evicted").Set(float64(m.SnapshotsEvicted.Load()))
	snapshots.WithLabelValues("failed").Set(float64(m.SnapshotsFailed.Load()))
	lastRun.Set(float64(finished.Unix()))

	registry.MustRegister(snapshots, lastRun)
	return registry
}

// WriteTextfile writes the counters in the node_exporter textfile collector format.
// The file is replaced atomically.
func (m *RetentionMetrics) WriteTextfile(path string, finished time.Time) error {
	if err := prometheus.WriteToTextfile(path, m.newRegistry(finished)); err != nil {
		return fmt.Errorf("could not write metrics textfile %s: %w", path, err)
	}
	return nil
}
