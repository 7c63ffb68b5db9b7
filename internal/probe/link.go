package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cubeops/cubeops/internal/resource"
)

// LinkProbe checks that a symlink exists at the expected location and
// resolves to the expected target.
type LinkProbe struct{}

func (p *LinkProbe) Probe(ctx context.Context, res *resource.Resource) (resource.ObservedState, error) {
	spec := res.Link
	if spec == nil {
		return resource.ObservedState{}, fmt.Errorf("resource %s has no link spec", res.Address())
	}

	info, err := os.Lstat(spec.Path)
	if os.IsNotExist(err) {
		return resource.AbsentState(), nil
	}
	if err != nil {
		return resource.ObservedState{}, fmt.Errorf("lstat %s: %w", spec.Path, err)
	}

	if info.Mode()&os.ModeSymlink == 0 {
		return resource.DegradedState("path exists but is not a symlink"), nil
	}

	dest, err := os.Readlink(spec.Path)
	if err != nil {
		return resource.ObservedState{}, fmt.Errorf("readlink %s: %w", spec.Path, err)
	}
	if filepath.Clean(dest) != filepath.Clean(spec.Target) {
		return resource.DegradedState(fmt.Sprintf("symlink points at %s, want %s", dest, spec.Target)), nil
	}

	if _, err := os.Stat(spec.Path); err != nil {
		return resource.DegradedState("symlink target does not exist"), nil
	}
	return resource.HealthyState(), nil
}
