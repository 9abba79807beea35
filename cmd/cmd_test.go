package cmd //nolint:testpackage

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/config"
)

const (
	projectsURL  = "https://gitlab.com/api/v4/projects"
	jobsURL      = "https://gitlab.com/api/v4/projects/%d/jobs"
	artifactsURL = "https://gitlab.com/api/v4/projects/%d/jobs/%d/artifacts"
)

type result struct {
	stdout string
	stderr string
	err    error
}

// isolate clears every environment variable the cleaner reads
// and points the default config file to an empty directory.
func isolate(t *testing.T) {
	t.Helper()
	for _, keys := range config.EnvKeys {
		for _, key := range keys {
			t.Setenv(key, "")
		}
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

func execute(t *testing.T, transport http.RoundTripper, args ...string) result {
	t.Helper()

	var stdout, stderr bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&stderr)

	root := newRootCmd(logger, gitlab.WithHTTPClient(&http.Client{Transport: transport}))
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.ExecuteContext(t.Context())
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func TestVersion(t *testing.T) {
	t.Run("exact_output", func(t *testing.T) {
		// Act
		res := execute(t, httpmock.NewMockTransport(), "version")

		// Assert
		require.NoError(t, res.err)
		assert.Equal(t, "v0.0.0\n", res.stdout)
	})

	t.Run("verbose", func(t *testing.T) {
		// Act
		res := execute(t, httpmock.NewMockTransport(), "version", "--verbose")

		// Assert
		require.NoError(t, res.err)
		assert.True(t, strings.HasPrefix(res.stdout, "v0.0.0\n"))
		assert.Contains(t, res.stdout, "commit:")
		assert.Contains(t, res.stdout, "platform:")
	})
}

func TestRootFlags(t *testing.T) {
	t.Run("error_log_format", func(t *testing.T) {
		res := execute(t, httpmock.NewMockTransport(), "version", "--log-format", "xml")
		assert.EqualError(t, res.err, `invalid --log-format argument, must be either "json" or "text"`)
	})
}

func TestCompletion(t *testing.T) {
	t.Run("bash", func(t *testing.T) {
		res := execute(t, httpmock.NewMockTransport(), "completion", "bash")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "bash completion")
	})

	t.Run("error_shell", func(t *testing.T) {
		res := execute(t, httpmock.NewMockTransport(), "completion", "tcsh")
		assert.Error(t, res.err)
	})
}

func TestCleanFlags(t *testing.T) {
	t.Run("missing_required", func(t *testing.T) {
		// Arrange
		isolate(t)
		transport := httpmock.NewMockTransport()

		// Act
		res := execute(t, transport, "clean")

		// Assert
		require.Error(t, res.err)
		assert.EqualError(t, res.err, `required flag(s) "server", "token" not set`)
		assert.Empty(t, res.stdout)
		assert.Equal(t, 0, transport.GetTotalCallCount())
	})

	t.Run("missing_token", func(t *testing.T) {
		// Arrange
		isolate(t)
		t.Setenv("CI_SERVER_HOST", "gitlab.com")

		// Act
		res := execute(t, httpmock.NewMockTransport(), "clean")

		// Assert
		assert.EqualError(t, res.err, `required flag(s) "token" not set`)
	})

	t.Run("invalid_env", func(t *testing.T) {
		// Arrange
		isolate(t)
		t.Setenv("CI_SERVER_HOST", "gitlab.com")
		t.Setenv("GITLAB_TOKEN", "token")
		t.Setenv("CLEANER_DRY_RUN", "invalid")

		// Act
		res := execute(t, httpmock.NewMockTransport(), "clean")

		// Assert
		assert.ErrorContains(t, res.err, "invalid dry run value 'invalid'")
	})

	t.Run("invalid_paths", func(t *testing.T) {
		// Arrange
		isolate(t)
		transport := httpmock.NewMockTransport()

		// Act
		res := execute(t, transport, "clean", "--server", "gitlab.com", "--token", "token", "--paths", "(")

		// Assert
		assert.ErrorContains(t, res.err, "invalid regexp '('")
		assert.Equal(t, 0, transport.GetTotalCallCount())
	})

	t.Run("invalid_threshold", func(t *testing.T) {
		isolate(t)
		res := execute(t, httpmock.NewMockTransport(), "clean", "--server", "gitlab.com", "--token", "token", "--threshold", "soon")
		assert.ErrorContains(t, res.err, "invalid threshold")
	})
}

func TestResolveConfig(t *testing.T) {
	resolve := func(t *testing.T, args ...string) (config.Config, error) {
		t.Helper()

		g := &globalOptions{logger: logrus.New()}
		cleanCmd := newCleanCmd(g)
		cleanCmd.Flags().StringVar(&g.configPath, "config", "", "")
		require.NoError(t, cleanCmd.ParseFlags(args))

		var f cleanFlags
		f.token, _ = cleanCmd.Flags().GetString("token")
		f.server, _ = cleanCmd.Flags().GetString("server")
		f.paths, _ = cleanCmd.Flags().GetStringArray("paths")
		f.dryRun, _ = cleanCmd.Flags().GetBool("dry-run")
		f.threshold, _ = cleanCmd.Flags().GetString("threshold")
		f.thresholdSize, _ = cleanCmd.Flags().GetString("threshold-size")
		f.concurrency, _ = cleanCmd.Flags().GetInt("concurrency")
		f.retries, _ = cleanCmd.Flags().GetInt("retries")
		f.timeout, _ = cleanCmd.Flags().GetDuration("timeout")

		return resolveConfig(cleanCmd, g, f, os.LookupEnv)
	}

	t.Run("from_env", func(t *testing.T) {
		// Arrange
		isolate(t)
		t.Setenv("CI_API_V4_URL", "https://gitlab.example.com/api/v4")
		t.Setenv("CLEANER_DRY_RUN", "true")
		t.Setenv("CLEANER_PATHS", `^group\/.*$`)
		t.Setenv("CLEANER_THRESHOLD", "72h")
		t.Setenv("GL_TOKEN", "token")

		// Act
		cfg, err := resolve(t)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "https://gitlab.example.com/api/v4", cfg.Server)
		assert.Equal(t, "token", cfg.Token)
		assert.True(t, cfg.DryRun)
		assert.Equal(t, []string{`^group\/.*$`}, cfg.Paths)
		assert.Equal(t, "72h", cfg.Threshold)
	})

	t.Run("project_name_fallback", func(t *testing.T) {
		// Arrange
		isolate(t)
		t.Setenv("CI_SERVER_HOST", "gitlab.example.com")
		t.Setenv("CI_PROJECT_NAME", "cleaner")
		t.Setenv("GITLAB_TOKEN", "token")

		// Act
		cfg, err := resolve(t)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "gitlab.example.com", cfg.Server)
		assert.Equal(t, []string{"cleaner"}, cfg.Paths)
	})

	t.Run("flags_override_env", func(t *testing.T) {
		// Arrange
		isolate(t)
		t.Setenv("CI_SERVER_HOST", "gitlab.example.com")
		t.Setenv("CLEANER_DRY_RUN", "invalid")
		t.Setenv("CLEANER_PATHS", "path1,path2")
		t.Setenv("CLEANER_THRESHOLD", "92h")
		t.Setenv("GITLAB_TOKEN", "token")

		// Act
		cfg, err := resolve(t, "--paths", "^group/.*$", "--dry-run", "--threshold", "3d", "--concurrency", "4")

		// Assert
		require.NoError(t, err)
		assert.True(t, cfg.DryRun)
		assert.Equal(t, []string{"^group/.*$"}, cfg.Paths)
		assert.Equal(t, "3d", cfg.Threshold)
		assert.Equal(t, 4, cfg.Concurrency)
		assert.Equal(t, "token", cfg.Token)
	})

	t.Run("paths_with_commas", func(t *testing.T) {
		// Arrange
		isolate(t)
		t.Setenv("CI_SERVER_HOST", "gitlab.example.com")
		t.Setenv("GITLAB_TOKEN", "token")

		// Act
		cfg, err := resolve(t, "--paths", "^a{1,3}$", "--paths", "^group/.*$")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []string{"^a{1,3}$", "^group/.*$"}, cfg.Paths)
	})

	t.Run("env_overrides_file", func(t *testing.T) {
		// Arrange
		isolate(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: file.example.com\ntoken: file-token\nthreshold: 30d\n"), 0o600))
		t.Setenv("GITLAB_TOKEN", "env-token")

		// Act
		cfg, err := resolve(t, "--config", path)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "file.example.com", cfg.Server)
		assert.Equal(t, "env-token", cfg.Token)
		assert.Equal(t, "30d", cfg.Threshold)
	})

	t.Run("error_missing_config_file", func(t *testing.T) {
		isolate(t)
		_, err := resolve(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorContains(t, err, "read config")
	})
}

func TestClean(t *testing.T) {
	now := time.Now()
	args := []string{"clean", "--server", "https://gitlab.com", "--token", "token", "--retries", "0", "--paths", "^a$"}

	register := func(transport *httpmock.MockTransport, deleteStatus int) {
		transport.RegisterResponder(http.MethodGet, projectsURL,
			httpmock.NewJsonResponderOrPanic(http.StatusOK, []*gitlab.Project{
				{ID: 1, PathWithNamespace: "a"},
				{ID: 2, PathWithNamespace: "b"},
				{ID: 3, PathWithNamespace: "c"},
			}))
		transport.RegisterResponder(http.MethodGet, fmt.Sprintf(jobsURL, 1),
			httpmock.NewJsonResponderOrPanic(http.StatusOK, []*gitlab.Job{
				{
					ID:        11,
					Artifacts: []gitlab.JobArtifact{{FileType: "archive", Size: 1024}},
					CreatedAt: lo.ToPtr(now.AddDate(0, 0, -30)),
				},
				{
					ID:        12,
					Artifacts: []gitlab.JobArtifact{{FileType: "archive", Size: 1024}},
					CreatedAt: lo.ToPtr(now.Add(-time.Hour)),
				},
			}))
		if deleteStatus != 0 {
			transport.RegisterResponder(http.MethodDelete, fmt.Sprintf(artifactsURL, 1, 11),
				httpmock.NewStringResponder(deleteStatus, ""))
		}
	}

	t.Run("one_line_per_project", func(t *testing.T) {
		// Arrange
		isolate(t)
		transport := httpmock.NewMockTransport()
		register(transport, http.StatusNoContent)

		// Act
		res := execute(t, transport, args...)

		// Assert
		require.NoError(t, res.err)
		assert.Equal(t, "cleaned  a  jobs=1/1 freed=1.0 KB\nskipped  b\nskipped  c\n", res.stdout)
		assert.Equal(t, map[string]int{
			"GET " + projectsURL:                         1,
			"GET " + fmt.Sprintf(jobsURL, 1):             1,
			"DELETE " + fmt.Sprintf(artifactsURL, 1, 11): 1,
		}, transport.GetCallCountInfo())
		assert.Contains(t, res.stderr, "run_id=")
		assert.Contains(t, res.stderr, "ending project execution")
		assert.NotContains(t, res.stderr, "token=token")
	})

	t.Run("dry_run", func(t *testing.T) {
		// Arrange
		isolate(t)
		transport := httpmock.NewMockTransport()
		register(transport, 0)

		// Act
		res := execute(t, transport, append(args, "--dry-run")...)

		// Assert
		require.NoError(t, res.err)
		assert.Equal(t, "dry-run  a  jobs=0/1 reclaimable=1.0 KB\nskipped  b\nskipped  c\n", res.stdout)
		assert.Equal(t, 2, transport.GetTotalCallCount())
		assert.Contains(t, res.stderr, "running in dry run mode, skipping job's artifacts deletion")
	})

	t.Run("threshold", func(t *testing.T) {
		// Arrange
		isolate(t)
		transport := httpmock.NewMockTransport()
		register(transport, http.StatusNoContent)

		// Act
		res := execute(t, transport, append(args, "--threshold", "60d")...)

		// Assert
		require.NoError(t, res.err)
		assert.Equal(t, "cleaned  a  jobs=0/0 freed=0 B\nskipped  b\nskipped  c\n", res.stdout)
		assert.Equal(t, 2, transport.GetTotalCallCount())
	})

	t.Run("partial_failure", func(t *testing.T) {
		// Arrange
		isolate(t)
		transport := httpmock.NewMockTransport()
		register(transport, http.StatusForbidden)

		// Act
		res := execute(t, transport, args...)

		// Assert
		assert.EqualError(t, res.err, "cleanup finished with 1 failure(s)")
		assert.Equal(t, "failed   a  jobs=0/1 freed=0 B failures=1\nskipped  b\nskipped  c\n", res.stdout)
		assert.Contains(t, res.stderr, "failed to delete job's artifacts")
	})

	t.Run("error_unauthorized", func(t *testing.T) {
		// Arrange
		isolate(t)
		transport := httpmock.NewMockTransport()
		transport.RegisterResponder(http.MethodGet, projectsURL,
			httpmock.NewStringResponder(http.StatusUnauthorized, `{"message":"401 Unauthorized"}`))

		// Act
		res := execute(t, transport, args...)

		// Assert
		assert.ErrorContains(t, res.err, "clean: list projects")
		assert.Empty(t, res.stdout)
	})
}
