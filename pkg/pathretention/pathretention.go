// Package pathretention applies a retention policy to the snapshots of a
// repository: it evaluates the date based rules, deletes what they reject with
// a pool of workers and then evicts the oldest snapshots one at a time while the
// destination is short on free space or inodes.
package pathretention

import (
	"context"
	"time"

	"github.com/paulschiretz/pgl-retention/pkg/diskstat"
	"github.com/paulschiretz/pgl-retention/pkg/hints"
	"github.com/paulschiretz/pgl-retention/pkg/pathretentionmetrics"
	"github.com/paulschiretz/pgl-retention/pkg/plog"
	"github.com/paulschiretz/pgl-retention/pkg/retention"
	"github.com/paulschiretz/pgl-retention/pkg/snapshot"
)

var ErrNothingToPrune = hints.New("nothing to prune")

type PathRetainer struct {
	numWorkers int
	// newProbe measures the filesystem holding the repository.
	newProbe func(absBasePath string) retention.CapacityProbe
}

// NewPathRetainer creates a new PathRetainer with numWorkers delete workers.
func NewPathRetainer(numWorkers int) *PathRetainer {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &PathRetainer{
		numWorkers: numWorkers,
		newProbe: func(absBasePath string) retention.CapacityProbe {
			return diskstat.New(absBasePath)
		},
	}
}

// Record is a decision together with the error of carrying it out, if any.
type Record struct {
	retention.Decision
	Error string
}

// Outcome is the result of one prune.
type Outcome struct {
	Records []Record
	Metrics pathretentionmetrics.Metrics
}

// Count returns the number of records with the given action. Failed deletions are included.
func (o Outcome) Count(a retention.Action) int {
	n := 0
	for _, r := range o.Records {
		if r.Action == a {
			n++
		}
	}
	return n
}

// Failed returns the number of decisions that could not be carried out.
func (o Outcome) Failed() int {
	n := 0
	for _, r := range o.Records {
		if r.Error != "" {
			n++
		}
	}
	return n
}

// Prune applies p to sids as of now. sids are expected newest first with
// RelPathKey relative to absBasePath. The returned Outcome is valid even
// when an error is returned.
func (r *PathRetainer) Prune(ctx context.Context, absBasePath string, sids []snapshot.SID, p *Plan, now time.Time) (Outcome, error) {
	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	default:
	}

	if len(sids) == 0 {
		return Outcome{}, ErrNothingToPrune
	}

	var m pathretentionmetrics.Metrics
	if p.Metrics {
		m = &pathretentionmetrics.RetentionMetrics{}
	} else {
		m = &pathretentionmetrics.NoopMetrics{}
	}

	t := &task{
		PathRetainer: r,
		ctx:          ctx,
		absBasePath:  absBasePath,
		sids:         sids,
		policy:       p.Policy,
		now:          now,
		metrics:      m,
		dryRun:       p.DryRun,
		failFast:     p.FailFast,
	}
	err := t.execute()
	return Outcome{Records: t.records, Metrics: m}, err
}

// Preview evaluates p without touching the filesystem or measuring capacity.
func Preview(sids []snapshot.SID, p *Plan, now time.Time) retention.Result {
	res := retention.Evaluate(sids, now, p.Policy)
	logRuleSummary(res)
	return res
}

func logRuleSummary(res retention.Result) {
	counts := res.CountByRule()
	args := make([]any, 0, 2*len(counts)+4)
	args = append(args, "keep", len(res.Keep), "delete", len(res.Delete))
	for rule, n := range counts {
		args = append(args, string(rule), n)
	}
	plog.Info("Retention evaluated", args...)
}
