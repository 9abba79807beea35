package artifacts

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/core"
)

// DefaultThreshold is the age after which job artifacts are deleted.
const DefaultThreshold = 7 * core.Day

// DefaultConcurrency is the number of projects cleaned in parallel.
const DefaultConcurrency = 10

// jobsPerProject sizes the job pool relative to the project pool.
const jobsPerProject = 10

// RunOption configures Run.
type RunOption func(*RunOptions)

// WithDryRun disables deletions, matched jobs are only logged.
func WithDryRun(dryRun bool) RunOption {
	return func(o *RunOptions) { o.DryRun = dryRun }
}

// WithPaths restricts cleaning to projects whose path with namespace
// matches one of the given regexps.
func WithPaths(paths ...string) RunOption {
	return func(o *RunOptions) { o.Paths = paths }
}

// WithThresholdDuration sets the minimum job age.
//
//	Given a job created on 2025-01-10 10:00:00
//	And the threshold duration is 7 days
//	And the current time is 2025-01-17 00:00:00
//	Then its artifacts are kept, 2025-01-10 10:00:00 is after 2025-01-10 00:00:00
func WithThresholdDuration(threshold time.Duration) RunOption {
	return func(o *RunOptions) { o.ThresholdDuration = threshold }
}

// WithThresholdSize sets the minimum artifacts size of a job, in bytes.
func WithThresholdSize(size int64) RunOption {
	return func(o *RunOptions) { o.ThresholdSize = size }
}

// WithConcurrency sets how many projects are cleaned in parallel.
func WithConcurrency(n int) RunOption {
	return func(o *RunOptions) { o.Concurrency = n }
}

// WithLogger sets the logger, logrus standard logger by default.
func WithLogger(logger logrus.FieldLogger) RunOption {
	return func(o *RunOptions) { o.logger = logger }
}

// WithObserver registers progress callbacks.
func WithObserver(observer Observer) RunOption {
	return func(o *RunOptions) { o.observer = observer }
}

// WithNow overrides the clock used to compute job ages.
func WithNow(now func() time.Time) RunOption {
	return func(o *RunOptions) { o.now = now }
}

// RunOptions holds every Run setting.
type RunOptions struct {
	DryRun            bool
	Paths             []string
	ThresholdDuration time.Duration `validate:"gt=0"`
	ThresholdSize     int64         `validate:"gte=0"`
	Concurrency       int           `validate:"gte=1,lte=100"`

	logger   logrus.FieldLogger
	observer Observer
	now      func() time.Time
	regexps  []*regexp.Regexp
}

var validate = validator.New()

// NewRunOptions applies opts on top of defaults and validates the result.
func NewRunOptions(opts ...RunOption) (RunOptions, error) {
	ro := RunOptions{
		ThresholdDuration: DefaultThreshold,
		Concurrency:       DefaultConcurrency,
		logger:            logrus.StandardLogger(),
		observer:          noopObserver{},
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(&ro)
	}

	var errs []error
	for _, path := range ro.Paths {
		reg, err := regexp.Compile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid regexp '%s': %w", path, err))
			continue
		}
		ro.regexps = append(ro.regexps, reg)
	}

	if err := validate.Struct(ro); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return ro, err
		}
		for _, verr := range verrs {
			errs = append(errs, fmt.Errorf("invalid %s '%v': must satisfy '%s=%s'", verr.Field(), verr.Value(), verr.Tag(), verr.Param()))
		}
	}
	return ro, errors.Join(errs...)
}

// Regexps returns the compiled paths.
func (ro RunOptions) Regexps() []*regexp.Regexp {
	return ro.regexps
}
