package artifacts

import (
	"time"

	"github.com/samber/lo"
)

// Status is the outcome of a project cleanup.
type Status string

const (
	StatusCleaned Status = "cleaned"
	StatusDryRun  Status = "dry-run"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// ProjectReport is the result of a single project.
type ProjectReport struct {
	Project

	Status      Status
	JobsScanned int
	JobsMatched int
	JobsCleaned int
	Failures    int
	// Bytes is the freed size, or the size that would be freed under dry run.
	Bytes    int64
	Duration time.Duration
	Err      error
}

// Report lists projects in the order the API returned them.
type Report struct {
	DryRun   bool
	Projects []ProjectReport
	Duration time.Duration
}

// Totals sums every project of the report.
type Totals struct {
	Projects    int
	Skipped     int
	JobsMatched int
	JobsCleaned int
	Failures    int
	Bytes       int64
}

// Totals computes the report totals.
func (r Report) Totals() Totals {
	return lo.Reduce(r.Projects, func(t Totals, p ProjectReport, _ int) Totals {
		t.Projects++
		if p.Status == StatusSkipped {
			t.Skipped++
		}
		t.JobsMatched += p.JobsMatched
		t.JobsCleaned += p.JobsCleaned
		t.Failures += p.Failures
		if p.Err != nil {
			t.Failures++
		}
		t.Bytes += p.Bytes
		return t
	}, Totals{})
}

// Observer receives progress events while Run is executing.
// Methods may be called from several goroutines.
type Observer interface {
	ProjectStarted(project Project)
	JobDone(job Job, deleted bool, err error)
	ProjectEnded(report ProjectReport)
}

type noopObserver struct{}

func (noopObserver) ProjectStarted(Project) {}

func (noopObserver) JobDone(Job, bool, error) {}

func (noopObserver) ProjectEnded(ProjectReport) {}
