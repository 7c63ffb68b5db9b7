package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	registrytypes "github.com/docker/docker/api/types/registry"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeops/cubeops/internal/retry"
	"github.com/cubeops/cubeops/internal/runner"
)

// scriptedRunner fails commands whose string form contains a configured
// fragment and reports success for everything else.
type scriptedRunner struct {
	failOn string
	ran    []runner.Command
}

func (s *scriptedRunner) Run(_ context.Context, cmd runner.Command) (*runner.Result, error) {
	s.ran = append(s.ran, cmd)
	if s.failOn != "" && strings.Contains(cmd.String(), s.failOn) {
		return &runner.Result{ExitCode: 1, Stderr: "boom"}, nil
	}
	return &runner.Result{ExitCode: 0}, nil
}

type fakeDocker struct {
	buildCalls  int
	builtTags   []string
	taggedRefs  []string
	pushedRefs  []string
	loginCalls  int
	createCalls int

	running bool
}

func (f *fakeDocker) ImageBuild(_ context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	f.buildCalls++
	f.builtTags = append(f.builtTags, options.Tags...)
	_, _ = io.Copy(io.Discard, buildContext)
	return types.ImageBuildResponse{Body: io.NopCloser(strings.NewReader("{}"))}, nil
}

func (f *fakeDocker) ImageTag(_ context.Context, source, target string) error {
	f.taggedRefs = append(f.taggedRefs, target)
	return nil
}

func (f *fakeDocker) ImagePush(_ context.Context, ref string, _ image.PushOptions) (io.ReadCloser, error) {
	f.pushedRefs = append(f.pushedRefs, ref)
	return io.NopCloser(strings.NewReader("{}")), nil
}

func (f *fakeDocker) RegistryLogin(_ context.Context, auth registrytypes.AuthConfig) (registrytypes.AuthenticateOKBody, error) {
	f.loginCalls++
	if auth.Username == "" {
		return registrytypes.AuthenticateOKBody{}, fmt.Errorf("missing username")
	}
	return registrytypes.AuthenticateOKBody{Status: "Login Succeeded"}, nil
}

func (f *fakeDocker) ContainerCreate(_ context.Context, _ *container.Config, _ *container.HostConfig, _ *network.NetworkingConfig, _ *v1.Platform, _ string) (container.CreateResponse, error) {
	f.createCalls++
	return container.CreateResponse{ID: "smoke-1"}, nil
}

func (f *fakeDocker) ContainerStart(_ context.Context, _ string, _ container.StartOptions) error {
	f.running = true
	return nil
}

func (f *fakeDocker) ContainerInspect(_ context.Context, id string) (types.ContainerJSON, error) {
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:    id,
			State: &types.ContainerState{Running: f.running, Status: "running"},
		},
	}, nil
}

func (f *fakeDocker) ContainerStop(_ context.Context, _ string, _ container.StopOptions) error {
	f.running = false
	return nil
}

func (f *fakeDocker) ContainerRemove(_ context.Context, _ string, _ container.RemoveOptions) error {
	return nil
}

type staticTags struct{ tags []string }

func (s staticTags) ListTags(context.Context, string) ([]string, error) {
	return s.tags, nil
}

func testCreds() (string, string, error) { return "tester", "secret", nil }

func testOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0o644))
	return Options{
		RepoDir:     dir,
		Branch:      "master",
		BaseImage:   "node:20",
		ImageName:   "cubeops/server",
		ImageTag:    "dev",
		RemoteImage: "example/cube-server",
		RemoteTag:   "release",
		PushLatest:  true,
		PushVersion: true,
		SmokePort:   4000,
	}
}

func TestRunHappyPathPushesAllTags(t *testing.T) {
	docker := &fakeDocker{}
	run := &scriptedRunner{}
	p := New(testOptions(t), run, docker, staticTags{tags: []string{"1.2.3", "1.2.9", "1.3.0", "latest"}}, testCreds)
	p.smokeBudget = retry.Fixed(3, time.Millisecond)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Nil(t, report.Failed())
	assert.True(t, report.Ran(StageDone))

	assert.Equal(t, 1, docker.buildCalls)
	assert.Contains(t, docker.builtTags, "cubeops/server:dev")
	assert.Equal(t, 1, docker.loginCalls)
	assert.ElementsMatch(t, []string{
		"example/cube-server:release",
		"example/cube-server:latest",
		"example/cube-server:1.3.1",
	}, docker.pushedRefs)
}

func TestRunBuildFailureSkipsContainerize(t *testing.T) {
	docker := &fakeDocker{}
	run := &scriptedRunner{failOn: "yarn build"}
	p := New(testOptions(t), run, docker, staticTags{}, testCreds)

	report, err := p.Run(context.Background())
	require.Error(t, err)

	failed := report.Failed()
	require.NotNil(t, failed)
	assert.Equal(t, StageBuild, failed.Stage)
	assert.Contains(t, err.Error(), "BUILD")

	assert.Zero(t, docker.buildCalls)
	assert.False(t, report.Ran(StageContainerize))
	assert.Empty(t, docker.pushedRefs)
}

func TestRunPushOnlySkipsBuildStages(t *testing.T) {
	docker := &fakeDocker{}
	run := &scriptedRunner{}
	opts := testOptions(t)
	opts.PushOnly = true
	opts.PushVersion = false
	p := New(opts, run, docker, nil, testCreds)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Ran(StageCheckout))
	assert.False(t, report.Ran(StageBuild))
	assert.False(t, report.Ran(StageContainerize))
	assert.True(t, report.Ran(StagePush))
	assert.Empty(t, run.ran)
	assert.ElementsMatch(t, []string{
		"example/cube-server:release",
		"example/cube-server:latest",
	}, docker.pushedRefs)
}

func TestRunBuildOnlyStopsBeforeTag(t *testing.T) {
	docker := &fakeDocker{}
	run := &scriptedRunner{}
	opts := testOptions(t)
	opts.BuildOnly = true
	p := New(opts, run, docker, nil, testCreds)
	p.smokeBudget = retry.Fixed(3, time.Millisecond)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, docker.buildCalls)
	assert.Equal(t, 1, docker.createCalls)
	assert.False(t, report.Ran(StageTag))
	assert.False(t, report.Ran(StagePush))
	assert.Zero(t, docker.loginCalls)
}

func TestRunMergeBranchAddsMergeCommand(t *testing.T) {
	docker := &fakeDocker{}
	run := &scriptedRunner{}
	opts := testOptions(t)
	opts.MergeBranch = "develop"
	opts.BuildOnly = true
	opts.SkipSmoke = true
	p := New(opts, run, docker, nil, testCreds)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	var merged bool
	for _, cmd := range run.ran {
		if strings.Contains(cmd.String(), "merge --no-edit origin/develop") {
			merged = true
		}
	}
	assert.True(t, merged)
}

func TestRunCredentialFailureFailsAuthStage(t *testing.T) {
	docker := &fakeDocker{}
	opts := testOptions(t)
	opts.PushOnly = true
	opts.PushVersion = false
	p := New(opts, &scriptedRunner{}, docker, nil, func() (string, string, error) {
		return "", "", fmt.Errorf("no credentials available")
	})

	report, err := p.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, report.Failed())
	assert.Equal(t, StageAuth, report.Failed().Stage)
	assert.Empty(t, docker.pushedRefs)
}
