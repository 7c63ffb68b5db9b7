// Package probe implements the per-kind state checks. A probe answers one
// question: is this resource absent, healthy, or present-but-broken? Probes
// never mutate anything.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"

	"github.com/cubeops/cubeops/internal/registry"
	"github.com/cubeops/cubeops/internal/resource"
	"github.com/cubeops/cubeops/internal/runner"
)

// Prober checks the current state of a single resource kind.
type Prober interface {
	Probe(ctx context.Context, res *resource.Resource) (resource.ObservedState, error)
}

// DockerAPI is the slice of the Docker client used by probes.
type DockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
}

const defaultDialTimeout = 3 * time.Second

// Set dispatches probes by resource kind.
type Set struct {
	probes map[resource.Kind]Prober
}

// NewSet wires the standard probe for every kind. remote may be nil, in
// which case docker-tag probes only consult the local image inventory.
func NewSet(run runner.Runner, docker DockerAPI, remote registry.TagLister) *Set {
	return &Set{probes: map[resource.Kind]Prober{
		resource.KindGitWorktree:    &WorktreeProbe{Runner: run},
		resource.KindComposeService: &ComposeProbe{Docker: docker, DialTimeout: defaultDialTimeout},
		resource.KindTCPPort:        &PortProbe{DialTimeout: defaultDialTimeout},
		resource.KindPackageLink:    &LinkProbe{},
		resource.KindDockerTag:      &ImageTagProbe{Docker: docker, Remote: remote},
		resource.KindDBSchema:       &SchemaProbe{PingTimeout: defaultDialTimeout},
	}}
}

// NewSetWith builds a Set from explicit per-kind probes, for tests.
func NewSetWith(probes map[resource.Kind]Prober) *Set {
	return &Set{probes: probes}
}

// Probe runs the kind-specific check for res.
func (s *Set) Probe(ctx context.Context, res *resource.Resource) (resource.ObservedState, error) {
	p, ok := s.probes[res.Kind]
	if !ok {
		return resource.ObservedState{}, fmt.Errorf("no probe for resource kind %q", res.Kind)
	}
	return p.Probe(ctx, res)
}
