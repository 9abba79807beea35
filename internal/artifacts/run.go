package artifacts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// ErrListProjects is returned by Run when projects could not be listed.
var ErrListProjects = errors.New("list projects")

const perPage = 100

// Run lists the projects visible to the client, filters them with paths
// and deletes the artifacts of every job older than the threshold.
//
// The returned report holds one entry per listed project, skipped ones included,
// in listing order. It is returned even when err is not nil.
func Run(ctx context.Context, client *gitlab.Client, opts ...RunOption) (Report, error) {
	ro, err := NewRunOptions(opts...)
	if err != nil {
		return Report{}, fmt.Errorf("new run options: %w", err)
	}

	projectPool, err := ants.NewPool(ro.Concurrency, ants.WithLogger(ro.logger))
	if err != nil {
		return Report{}, fmt.Errorf("projects pool: %w", err)
	}
	defer projectPool.Release()

	jobPool, err := ants.NewPool(ro.Concurrency*jobsPerProject, ants.WithLogger(ro.logger))
	if err != nil {
		return Report{}, fmt.Errorf("jobs pool: %w", err)
	}
	defer jobPool.Release()

	r := &runner{client: client, opts: ro, jobs: jobPool, now: ro.now()}
	start := time.Now()

	projects, listErr := r.readProjects(ctx)

	var (
		reports []*ProjectReport
		wg      sync.WaitGroup
	)
	for project := range projects {
		report := &ProjectReport{Project: project}
		reports = append(reports, report)

		if !project.Matches(ro.Regexps()...) {
			ro.logger.WithFields(projectFields(project)).Info("skipping project cleaning")
			report.Status = StatusSkipped
			ro.observer.ProjectEnded(*report)
			continue
		}

		wg.Add(1)
		if err := projectPool.Submit(func() {
			defer wg.Done()
			r.cleanProject(ctx, report)
		}); err != nil {
			wg.Done()
			report.Status = StatusFailed
			report.Err = fmt.Errorf("submit project: %w", err)
			ro.observer.ProjectEnded(*report)
		}
	}
	wg.Wait()

	report := Report{
		DryRun:   ro.DryRun,
		Projects: lo.Map(reports, func(p *ProjectReport, _ int) ProjectReport { return *p }),
		Duration: time.Since(start),
	}
	if err := <-listErr; err != nil {
		return report, err
	}
	// an interruption after the last page still aborts the run
	return report, ctx.Err()
}

type runner struct {
	client *gitlab.Client
	opts   RunOptions
	jobs   *ants.Pool
	now    time.Time
}

func projectFields(p Project) logrus.Fields {
	return logrus.Fields{"project_id": p.ID, "project_path": p.PathWithNamespace}
}

// readProjects pages through the projects the token can maintain.
// The projects channel is unbuffered to keep a single page in memory;
// the error channel receives exactly one value once listing is over.
func (r *runner) readProjects(ctx context.Context) (<-chan Project, <-chan error) {
	out := make(chan Project)
	errc := make(chan error, 1)

	opts := &gitlab.ListProjectsOptions{
		ListOptions: gitlab.ListOptions{
			Page:    1,
			PerPage: perPage,
		},
		Archived:             lo.ToPtr(false),
		IncludePendingDelete: lo.ToPtr(false),
		Membership:           lo.ToPtr(true),
		// only maintainers can delete job artifacts
		MinAccessLevel: lo.ToPtr(gitlab.MaintainerPermissions),
		Simple:         lo.ToPtr(true),
	}

	go func() {
		defer close(out)
		for {
			projects, resp, err := r.client.Projects.ListProjects(opts, gitlab.WithContext(ctx))
			if err != nil {
				errc <- fmt.Errorf("%w: page %d: %w", ErrListProjects, opts.Page, err)
				return
			}

			for _, project := range projects {
				select {
				case out <- ProjectFromGitLab(project):
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}

			if len(projects) == 0 || resp == nil || resp.NextPage == 0 {
				errc <- nil
				return
			}
			opts.Page++
		}
	}()

	return out, errc
}

// cleanProject pages through the project finished jobs and submits
// the ones needing cleanup to the job pool, then waits for them.
func (r *runner) cleanProject(ctx context.Context, report *ProjectReport) {
	start := time.Now()
	logger := r.opts.logger.WithFields(projectFields(report.Project))
	logger.Info("starting project execution")
	r.opts.observer.ProjectStarted(report.Project)

	var (
		wg       sync.WaitGroup
		cleaned  atomic.Int64
		failures atomic.Int64
		bytes    atomic.Int64
	)

	opts := &gitlab.ListJobsOptions{
		ListOptions: gitlab.ListOptions{
			Page:    1,
			PerPage: perPage,
		},
		Scope: &[]gitlab.BuildStateValue{gitlab.Failed, gitlab.Success},
	}

pages:
	for {
		jobs, resp, err := r.client.Jobs.ListProjectJobs(report.ID, opts, gitlab.WithContext(ctx))
		if err != nil {
			logger.WithError(err).Warn("failed to retrieve project jobs")
			report.Err = fmt.Errorf("list jobs: %w", err)
			break
		}

		for _, j := range jobs {
			report.JobsScanned++
			job := JobFromGitLab(report.ID, j)
			if !job.NeedCleanup(r.now, r.opts.ThresholdDuration, r.opts.ThresholdSize) {
				continue
			}
			if ctx.Err() != nil {
				report.Err = ctx.Err()
				break pages
			}
			report.JobsMatched++

			wg.Add(1)
			err := r.jobs.Submit(func() {
				defer wg.Done()
				deleted, err := r.deleteArtifacts(ctx, job)
				switch {
				case err != nil:
					failures.Add(1)
				case deleted:
					cleaned.Add(1)
					bytes.Add(job.Size())
				case r.opts.DryRun:
					bytes.Add(job.Size())
				}
				r.opts.observer.JobDone(job, deleted, err)
			})
			if err != nil {
				wg.Done()
				failures.Add(1)
				logger.WithError(err).WithField("job_id", job.ID).Warn("failed to submit job's artifacts deletion")
			}
		}

		if len(jobs) == 0 || resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page++
	}
	wg.Wait()

	report.JobsCleaned = int(cleaned.Load())
	report.Failures = int(failures.Load())
	report.Bytes = bytes.Load()
	report.Duration = time.Since(start)
	switch {
	case report.Err != nil || report.Failures > 0:
		report.Status = StatusFailed
	case r.opts.DryRun:
		report.Status = StatusDryRun
	default:
		report.Status = StatusCleaned
	}

	logger.WithFields(logrus.Fields{
		"execution_duration": report.Duration,
		"jobs_cleaned":       report.JobsCleaned,
		"jobs_matched":       report.JobsMatched,
	}).Info("ending project execution")
	r.opts.observer.ProjectEnded(*report)
}

// deleteArtifacts deletes the job artifacts unless running in dry run mode.
func (r *runner) deleteArtifacts(ctx context.Context, job Job) (bool, error) {
	logger := r.opts.logger.WithFields(logrus.Fields{"job_id": job.ID, "project_id": job.ProjectID})

	if r.opts.DryRun {
		logger.Info("running in dry run mode, skipping job's artifacts deletion")
		return false, nil
	}

	if err := job.DeleteArtifacts(ctx, r.client); err != nil {
		logger.WithError(err).Warn("failed to delete job's artifacts")
		return false, err
	}
	logger.Debug("job's artifacts deleted")
	return true, nil
}
