package probe

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"

	"github.com/cubeops/cubeops/internal/registry"
	"github.com/cubeops/cubeops/internal/resource"
)

// ImageTagProbe checks the local image inventory for name:tag and falls
// back to the remote registry's tag list when a lister is configured.
type ImageTagProbe struct {
	Docker DockerAPI
	Remote registry.TagLister
}

func (p *ImageTagProbe) Probe(ctx context.Context, res *resource.Resource) (resource.ObservedState, error) {
	spec := res.Image
	if spec == nil {
		return resource.ObservedState{}, fmt.Errorf("resource %s has no image spec", res.Address())
	}

	images, err := p.Docker.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", spec.Ref())),
	})
	if err != nil {
		return resource.ObservedState{}, fmt.Errorf("listing images for %s: %w", spec.Ref(), err)
	}
	if len(images) > 0 {
		return resource.HealthyState(), nil
	}

	if p.Remote != nil {
		tags, err := p.Remote.ListTags(ctx, spec.Repository)
		if err != nil {
			return resource.ObservedState{}, fmt.Errorf("listing remote tags for %s: %w", spec.Repository, err)
		}
		for _, t := range tags {
			if t == spec.Tag {
				return resource.HealthyState(), nil
			}
		}
	}

	return resource.AbsentState(), nil
}
