package artifacts

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/samber/lo"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// FileTypeTrace is the job log. GitLab keeps it when artifacts are deleted,
// so it never counts as cleanable storage.
const FileTypeTrace = "trace"

// Project is the part of a GitLab project the cleaner needs.
type Project struct {
	ID                int64
	PathWithNamespace string
}

// Matches returns true when the project path matches one of regexps,
// or when no regexp is given.
func (p Project) Matches(regexps ...*regexp.Regexp) bool {
	if len(regexps) == 0 {
		return true
	}
	return lo.SomeBy(regexps, func(r *regexp.Regexp) bool {
		return r.MatchString(p.PathWithNamespace)
	})
}

// ProjectFromGitLab converts an API project.
func ProjectFromGitLab(project *gitlab.Project) Project {
	return Project{
		ID:                int64(project.ID),
		PathWithNamespace: project.PathWithNamespace,
	}
}

// Artifact is one file attached to a job.
type Artifact struct {
	FileType string
	Size     int64
}

// Job is the part of a GitLab job the cleaner needs.
type Job struct {
	ID                int64
	ProjectID         int64
	CreatedAt         time.Time
	ArtifactsExpireAt time.Time
	Artifacts         []Artifact
}

// JobFromGitLab converts an API job of the given project.
func JobFromGitLab(projectID int64, job *gitlab.Job) Job {
	return Job{
		ID:                int64(job.ID),
		ProjectID:         projectID,
		CreatedAt:         lo.FromPtr(job.CreatedAt),
		ArtifactsExpireAt: lo.FromPtr(job.ArtifactsExpireAt),
		Artifacts: lo.Map(job.Artifacts, func(a gitlab.JobArtifact, _ int) Artifact {
			return Artifact{FileType: a.FileType, Size: int64(a.Size)}
		}),
	}
}

// Cleanable returns the artifacts removed by an artifacts deletion.
func (j Job) Cleanable() []Artifact {
	return lo.Filter(j.Artifacts, func(a Artifact, _ int) bool {
		return a.FileType != FileTypeTrace
	})
}

// Size is the total size of cleanable artifacts.
func (j Job) Size() int64 {
	return lo.SumBy(j.Cleanable(), func(a Artifact) int64 { return a.Size })
}

// NeedCleanup reports whether the job artifacts must be deleted at time now.
//
// Jobs without cleanable artifacts, with artifacts GitLab already expired,
// or lighter than minSize are kept. A job without creation date is a
// misconfiguration and is cleaned. Otherwise the job is cleaned when it
// was created before now minus threshold.
func (j Job) NeedCleanup(now time.Time, threshold time.Duration, minSize int64) bool {
	cleanable := j.Cleanable()
	if len(cleanable) == 0 {
		return false
	}

	// expired artifacts are removed by GitLab housekeeping
	if !j.ArtifactsExpireAt.IsZero() && !j.ArtifactsExpireAt.After(now) {
		return false
	}

	if j.Size() < minSize {
		return false
	}

	if j.CreatedAt.IsZero() {
		return true
	}
	return j.CreatedAt.Before(now.Add(-threshold))
}

// DeleteArtifacts calls the job artifacts deletion endpoint.
func (j Job) DeleteArtifacts(ctx context.Context, client *gitlab.Client) error {
	if _, err := client.Jobs.DeleteArtifacts(j.ProjectID, j.ID, gitlab.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete artifacts: %w", err)
	}
	return nil
}
