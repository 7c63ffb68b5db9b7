package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/go-connections/nat"

	"github.com/cubeops/cubeops/internal/resource"
)

// Compose label keys set by docker compose on every container it manages.
const (
	composeProjectLabel = "com.docker.compose.project"
	composeServiceLabel = "com.docker.compose.service"
)

// ComposeProbe checks that a compose service has a running container that
// passes its health check and, when a published port is declared, accepts
// TCP connections on it.
type ComposeProbe struct {
	Docker      DockerAPI
	DialTimeout time.Duration
}

func (p *ComposeProbe) Probe(ctx context.Context, res *resource.Resource) (resource.ObservedState, error) {
	spec := res.Compose
	if spec == nil {
		return resource.ObservedState{}, fmt.Errorf("resource %s has no compose spec", res.Address())
	}

	containers, err := p.Docker.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", composeProjectLabel+"="+spec.Project),
			filters.Arg("label", composeServiceLabel+"="+spec.Service),
		),
	})
	if err != nil {
		return resource.ObservedState{}, fmt.Errorf("listing containers for %s/%s: %w", spec.Project, spec.Service, err)
	}
	if len(containers) == 0 {
		return resource.AbsentState(), nil
	}

	c := containers[0]
	if c.State != "running" {
		return resource.DegradedState(fmt.Sprintf("container %s is %s", c.Names[0], c.State)), nil
	}

	inspect, err := p.Docker.ContainerInspect(ctx, c.ID)
	if err != nil {
		return resource.ObservedState{}, fmt.Errorf("inspecting container %s: %w", c.ID, err)
	}
	if inspect.State != nil && inspect.State.Health != nil {
		if status := inspect.State.Health.Status; status != "healthy" {
			return resource.DegradedState("health status is " + status), nil
		}
	}

	if spec.PublishedPort > 0 {
		if !portPublished(inspect.NetworkSettings.Ports, spec.PublishedPort) {
			return resource.DegradedState(fmt.Sprintf("port %d is not published", spec.PublishedPort)), nil
		}
		host := spec.Host
		if host == "" {
			host = "127.0.0.1"
		}
		addr := net.JoinHostPort(host, strconv.Itoa(spec.PublishedPort))
		conn, err := net.DialTimeout("tcp", addr, p.DialTimeout)
		if err != nil {
			return resource.DegradedState(fmt.Sprintf("port %d on %s is not accepting connections", spec.PublishedPort, host)), nil
		}
		_ = conn.Close()
	}

	return resource.HealthyState(), nil
}

func portPublished(ports nat.PortMap, hostPort int) bool {
	want := strconv.Itoa(hostPort)
	for _, bindings := range ports {
		for _, b := range bindings {
			if b.HostPort == want {
				return true
			}
		}
	}
	return false
}
