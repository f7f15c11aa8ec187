package pathretentionmetrics

import (
	"sync/atomic"
	"time"

	"github.com/paulschiretz/pgl-retention/pkg/plog"
)

// Metrics defines the interface for collecting and reporting retention statistics.
type Metrics interface {
	AddSnapshotsKept(n int64)
	AddSnapshotsDeleted(n int64)
	AddSnapshotsEvicted(n int64)
	AddSnapshotsFailed(n int64)
	LogSummary(msg string)
	StartProgress(msg string, interval time.Duration)
	StopProgress()
	WriteTextfile(path string, finished time.Time) error
}

// RetentionMetrics holds the atomic counters for tracking the retention operation's progress.
type RetentionMetrics struct {
	SnapshotsKept    atomic.Int64
	SnapshotsDeleted atomic.Int64
	SnapshotsEvicted atomic.Int64
	SnapshotsFailed  atomic.Int64

	stopChan chan struct{}
}

func (m *RetentionMetrics) AddSnapshotsKept(n int64)    { m.SnapshotsKept.Add(n) }
func (m *RetentionMetrics) AddSnapshotsDeleted(n int64) { m.SnapshotsDeleted.Add(n) }
func (m *RetentionMetrics) AddSnapshotsEvicted(n int64) { m.SnapshotsEvicted.Add(n) }
func (m *RetentionMetrics) AddSnapshotsFailed(n int64)  { m.SnapshotsFailed.Add(n) }

func (m *RetentionMetrics) StartProgress(msg string, interval time.Duration) {
	stop := make(chan struct{})
	m.stopChan = stop
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.LogSummary(msg)
			case <-stop:
				return
			}
		}
	}()
}

func (m *RetentionMetrics) StopProgress() {
	if m.stopChan != nil {
		close(m.stopChan)
		m.stopChan = nil
	}
}

func (m *RetentionMetrics) LogSummary(msg string) {
	plog.Info(msg,
		"snapshots_kept", m.SnapshotsKept.Load(),
		"snapshots_deleted", m.SnapshotsDeleted.Load(),
		"snapshots_evicted", m.SnapshotsEvicted.Load(),
		"snapshots_failed", m.SnapshotsFailed.Load(),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
type NoopMetrics struct{}

func (m *NoopMetrics) AddSnapshotsKept(n int64)                            {}
func (m *NoopMetrics) AddSnapshotsDeleted(n int64)                         {}
func (m *NoopMetrics) AddSnapshotsEvicted(n int64)                         {}
func (m *NoopMetrics) AddSnapshotsFailed(n int64)                          {}
func (m *NoopMetrics) LogSummary(msg string)                               {}
func (m *NoopMetrics) StartProgress(msg string, interval time.Duration)    {}
func (m *NoopMetrics) StopProgress()                                       {}
func (m *NoopMetrics) WriteTextfile(path string, finished time.Time) error { return nil }

var _ Metrics = (*RetentionMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
