// Package pipeline sequences the build-and-publish flow for the analytics
// server image: source checkout, dependency install, compile, containerize,
// smoke test, tag, authenticate, push. Stages run strictly in order and the
// first failure aborts the rest; completed stages are never rolled back.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	registrytypes "github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/pkg/archive"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cubeops/cubeops/internal/logging"
	"github.com/cubeops/cubeops/internal/registry"
	"github.com/cubeops/cubeops/internal/render"
	"github.com/cubeops/cubeops/internal/retry"
	"github.com/cubeops/cubeops/internal/runner"
)

// Stage identifies one step of the publish flow.
type Stage string

const (
	StageInit         Stage = "INIT"
	StageCheckout     Stage = "CHECKOUT"
	StageDeps         Stage = "DEPS"
	StageBuild        Stage = "BUILD"
	StageContainerize Stage = "CONTAINERIZE"
	StageSmoke        Stage = "SMOKE"
	StageTag          Stage = "TAG"
	StageAuth         Stage = "AUTH"
	StagePush         Stage = "PUSH"
	StageDone         Stage = "DONE"
	StageFailed       Stage = "FAILED"
)

// DockerAPI is the slice of the Docker engine client the pipeline uses.
type DockerAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ImageTag(ctx context.Context, source, target string) error
	ImagePush(ctx context.Context, ref string, options image.PushOptions) (io.ReadCloser, error)
	RegistryLogin(ctx context.Context, auth registrytypes.AuthConfig) (registrytypes.AuthenticateOKBody, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *v1.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// CredentialFunc supplies registry credentials when they are needed.
type CredentialFunc func() (username, password string, err error)

// Options configures one pipeline run.
type Options struct {
	// RepoDir is the checkout of the server source tree.
	RepoDir string
	// Remote and Branch select what CHECKOUT fetches and checks out.
	Remote string
	Branch string
	// MergeBranch, when set, is merged into Branch after checkout.
	MergeBranch string

	// BaseImage and InstallCommands feed the Dockerfile template.
	BaseImage       string
	InstallCommands []string

	// ImageName:ImageTag is the local build tag; RemoteImage:RemoteTag is
	// the registry target.
	ImageName   string
	ImageTag    string
	RemoteImage string
	RemoteTag   string

	// PushLatest also pushes a "latest" alias. PushVersion additionally
	// publishes an auto-incremented semantic version tag.
	PushLatest  bool
	PushVersion bool

	// BuildOnly stops after the smoke test; PushOnly assumes the local
	// image already exists and goes straight to tag/auth/push.
	BuildOnly bool
	PushOnly  bool

	// SmokePort is the port the freshly built image must answer on.
	SmokePort int
	// SkipSmoke disables the container smoke test.
	SkipSmoke bool

	// Stream forwards external command output to the operator's terminal.
	Stream bool
}

// StageResult records one completed (or failed) stage.
type StageResult struct {
	Stage Stage
	Took  time.Duration
	Err   error
}

// Report is the outcome of a run: the stages that executed, in order.
type Report struct {
	Stages []StageResult
}

// Failed returns the first failing stage result, or nil on success.
func (r *Report) Failed() *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Err != nil {
			return &r.Stages[i]
		}
	}
	return nil
}

// Ran reports whether the named stage was invoked during the run.
func (r *Report) Ran(stage Stage) bool {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return true
		}
	}
	return false
}

// Pipeline builds and publishes the server image.
type Pipeline struct {
	opts   Options
	run    runner.Runner
	docker DockerAPI
	tags   registry.TagLister
	creds  CredentialFunc

	smokeBudget retry.Policy

	// Carried between stages of one run.
	resolvedTags []string
	encodedAuth  string
}

// New assembles a pipeline. tags may be nil when PushVersion is off.
func New(opts Options, run runner.Runner, docker DockerAPI, tags registry.TagLister, creds CredentialFunc) *Pipeline {
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	if creds == nil {
		creds = envCredentials
	}
	return &Pipeline{
		opts:        opts,
		run:         run,
		docker:      docker,
		tags:        tags,
		creds:       creds,
		smokeBudget: retry.Fixed(12, 5*time.Second),
	}
}

func envCredentials() (string, string, error) {
	user := os.Getenv("DOCKER_USERNAME")
	pass := os.Getenv("DOCKER_PASSWORD")
	if user == "" || pass == "" {
		return "", "", fmt.Errorf("DOCKER_USERNAME and DOCKER_PASSWORD must be set")
	}
	return user, pass, nil
}

type stageFunc struct {
	stage Stage
	fn    func(context.Context) error
}

func (p *Pipeline) plan() []stageFunc {
	var stages []stageFunc
	if !p.opts.PushOnly {
		stages = append(stages,
			stageFunc{StageCheckout, p.checkout},
			stageFunc{StageDeps, p.installDeps},
			stageFunc{StageBuild, p.build},
			stageFunc{StageContainerize, p.containerize},
		)
		if !p.opts.SkipSmoke {
			stages = append(stages, stageFunc{StageSmoke, p.smoke})
		}
	}
	if !p.opts.BuildOnly {
		stages = append(stages,
			stageFunc{StageTag, p.tag},
			stageFunc{StageAuth, p.auth},
			stageFunc{StagePush, p.push},
		)
	}
	return stages
}

// Run executes the staged flow. The returned report always reflects what
// actually ran; the error is the first stage failure, if any.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	for _, s := range p.plan() {
		logging.Info("pipeline stage", "stage", string(s.stage))
		start := time.Now()
		err := s.fn(ctx)
		report.Stages = append(report.Stages, StageResult{
			Stage: s.stage,
			Took:  time.Since(start),
			Err:   err,
		})
		if err != nil {
			logging.Error("pipeline stage failed", "stage", string(s.stage), "error", err)
			return report, fmt.Errorf("stage %s: %w", s.stage, err)
		}
	}
	report.Stages = append(report.Stages, StageResult{Stage: StageDone})
	return report, nil
}

func (p *Pipeline) git(ctx context.Context, args ...string) error {
	cmd := runner.Command{Name: "git", Args: args, Dir: p.opts.RepoDir, Stream: p.opts.Stream}
	res, err := p.run.Run(ctx, cmd)
	return runner.Check(res, err, cmd)
}

func (p *Pipeline) yarn(ctx context.Context, args ...string) error {
	cmd := runner.Command{Name: "yarn", Args: args, Dir: p.opts.RepoDir, Stream: p.opts.Stream}
	res, err := p.run.Run(ctx, cmd)
	return runner.Check(res, err, cmd)
}

func (p *Pipeline) checkout(ctx context.Context) error {
	if err := p.git(ctx, "fetch", p.opts.Remote); err != nil {
		return err
	}
	if err := p.git(ctx, "checkout", p.opts.Branch); err != nil {
		return err
	}
	if err := p.git(ctx, "pull", "--ff-only", p.opts.Remote, p.opts.Branch); err != nil {
		return err
	}
	if p.opts.MergeBranch != "" {
		ref := p.opts.Remote + "/" + p.opts.MergeBranch
		if err := p.git(ctx, "merge", "--no-edit", ref); err != nil {
			return fmt.Errorf("merging %s: %w", ref, err)
		}
	}
	return nil
}

func (p *Pipeline) installDeps(ctx context.Context) error {
	return p.yarn(ctx, "install", "--frozen-lockfile")
}

func (p *Pipeline) build(ctx context.Context) error {
	return p.yarn(ctx, "build")
}

func (p *Pipeline) localRef() string {
	return p.opts.ImageName + ":" + p.opts.ImageTag
}

func (p *Pipeline) remoteRef(tag string) string {
	return p.opts.RemoteImage + ":" + tag
}

func (p *Pipeline) containerize(ctx context.Context) error {
	dockerfile, err := render.Dockerfile(render.DockerfileOptions{
		BaseImage:       p.opts.BaseImage,
		InstallCommands: p.opts.InstallCommands,
		Port:            p.opts.SmokePort,
	})
	if err != nil {
		return err
	}
	dockerfilePath := filepath.Join(p.opts.RepoDir, "Dockerfile.cubeops")
	if err := os.WriteFile(dockerfilePath, []byte(dockerfile), 0o644); err != nil {
		return fmt.Errorf("writing build descriptor: %w", err)
	}

	tar, err := archive.TarWithOptions(p.opts.RepoDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("creating build context tar: %w", err)
	}

	resp, err := p.docker.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:       []string{p.localRef()},
		Dockerfile: "Dockerfile.cubeops",
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("building image: %w", err)
	}
	defer resp.Body.Close()

	// Drain output to prevent blocking.
	out := io.Discard
	if p.opts.Stream {
		out = os.Stdout
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("reading build output: %w", err)
	}
	return nil
}

// smoke boots the freshly built image once and waits for it to report
// healthy, then removes the throwaway container.
func (p *Pipeline) smoke(ctx context.Context) error {
	name := strings.ReplaceAll(p.opts.ImageName, "/", "-") + "-smoke"

	created, err := p.docker.ContainerCreate(ctx,
		&container.Config{Image: p.localRef()},
		&container.HostConfig{AutoRemove: false},
		&network.NetworkingConfig{},
		&v1.Platform{},
		name,
	)
	if err != nil {
		return fmt.Errorf("creating smoke container: %w", err)
	}
	defer func() {
		timeout := 10
		_ = p.docker.ContainerStop(ctx, created.ID, container.StopOptions{Timeout: &timeout})
		_ = p.docker.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
	}()

	if err := p.docker.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("starting smoke container: %w", err)
	}

	check := func(ctx context.Context) (bool, string) {
		inspect, err := p.docker.ContainerInspect(ctx, created.ID)
		if err != nil {
			return false, err.Error()
		}
		if inspect.State == nil {
			return false, "no state"
		}
		if !inspect.State.Running {
			return false, "state " + inspect.State.Status
		}
		if inspect.State.Health != nil && inspect.State.Health.Status != types.Healthy {
			return false, "health " + inspect.State.Health.Status
		}
		return true, ""
	}
	if err := p.smokeBudget.AwaitCondition(ctx, check); err != nil {
		return fmt.Errorf("smoke test: %w", err)
	}
	return nil
}

// publishTags computes every remote tag this run pushes. The semantic
// version tag is derived from the registry's current tag list; a collision
// is resolved by bumping the patch component and retrying.
func (p *Pipeline) publishTags(ctx context.Context) ([]string, error) {
	tags := []string{p.opts.RemoteTag}
	if p.opts.PushLatest && p.opts.RemoteTag != "latest" {
		tags = append(tags, "latest")
	}
	if p.opts.PushVersion {
		if p.tags == nil {
			return nil, fmt.Errorf("version publishing requires a registry tag listing")
		}
		existing, err := p.tags.ListTags(ctx, p.opts.RemoteImage)
		if err != nil {
			return nil, fmt.Errorf("listing remote tags: %w", err)
		}
		version, err := registry.ResolveVersion(existing)
		if err != nil {
			return nil, err
		}
		tags = append(tags, version)
	}
	return tags, nil
}

func (p *Pipeline) tag(ctx context.Context) error {
	tags, err := p.publishTags(ctx)
	if err != nil {
		return err
	}
	for _, t := range tags {
		target := p.remoteRef(t)
		logging.Debug("tagging image", "source", p.localRef(), "target", target)
		if err := p.docker.ImageTag(ctx, p.localRef(), target); err != nil {
			return fmt.Errorf("tagging %s: %w", target, err)
		}
	}
	p.resolvedTags = tags
	return nil
}

func (p *Pipeline) auth(ctx context.Context) error {
	user, pass, err := p.creds()
	if err != nil {
		return err
	}
	authConfig := registrytypes.AuthConfig{Username: user, Password: pass}
	if _, err := p.docker.RegistryLogin(ctx, authConfig); err != nil {
		return fmt.Errorf("registry login: %w", err)
	}
	encoded, err := registrytypes.EncodeAuthConfig(authConfig)
	if err != nil {
		return fmt.Errorf("encoding registry auth: %w", err)
	}
	p.encodedAuth = encoded
	return nil
}

func (p *Pipeline) push(ctx context.Context) error {
	tags := p.resolvedTags
	if len(tags) == 0 {
		var err error
		if tags, err = p.publishTags(ctx); err != nil {
			return err
		}
	}
	for _, t := range tags {
		ref := p.remoteRef(t)
		logging.Info("pushing image", "ref", ref)
		reader, err := p.docker.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: p.encodedAuth})
		if err != nil {
			return fmt.Errorf("pushing %s: %w", ref, err)
		}
		_, err = io.Copy(io.Discard, reader)
		reader.Close()
		if err != nil {
			return fmt.Errorf("reading push output for %s: %w", ref, err)
		}
	}
	return nil
}
