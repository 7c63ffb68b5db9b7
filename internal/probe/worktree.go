package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cubeops/cubeops/internal/resource"
	"github.com/cubeops/cubeops/internal/runner"
)

// WorktreeProbe checks that a directory exists and is a worktree of the
// expected branch, registered with the main repository.
type WorktreeProbe struct {
	Runner runner.Runner
}

func (p *WorktreeProbe) Probe(ctx context.Context, res *resource.Resource) (resource.ObservedState, error) {
	spec := res.Worktree
	if spec == nil {
		return resource.ObservedState{}, fmt.Errorf("resource %s has no worktree spec", res.Address())
	}

	if _, err := os.Stat(spec.Path); os.IsNotExist(err) {
		return resource.AbsentState(), nil
	} else if err != nil {
		return resource.ObservedState{}, fmt.Errorf("stat %s: %w", spec.Path, err)
	}

	cmd := runner.Command{
		Name: "git",
		Args: []string{"-C", spec.RepoDir, "worktree", "list", "--porcelain"},
	}
	out, err := p.Runner.Run(ctx, cmd)
	if err != nil {
		return resource.ObservedState{}, err
	}
	if out.ExitCode != 0 {
		return resource.ObservedState{}, &runner.ExternalError{Cmd: cmd.String(), ExitCode: out.ExitCode, Stderr: out.Stderr}
	}

	branch, registered := worktreeBranch(out.Stdout, spec.Path)
	if !registered {
		return resource.DegradedState("directory exists but is not a registered worktree"), nil
	}
	if branch != spec.Branch {
		return resource.DegradedState(fmt.Sprintf("worktree is on branch %q, want %q", branch, spec.Branch)), nil
	}
	return resource.HealthyState(), nil
}

// worktreeBranch parses `git worktree list --porcelain` output and returns
// the branch checked out at path, if path is registered.
func worktreeBranch(porcelain, path string) (branch string, registered bool) {
	want := filepath.Clean(path)
	var current string
	var matched bool

	for _, line := range strings.Split(porcelain, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "worktree "):
			current = filepath.Clean(strings.TrimPrefix(line, "worktree "))
			matched = current == want
		case strings.HasPrefix(line, "branch ") && matched:
			ref := strings.TrimPrefix(line, "branch ")
			return strings.TrimPrefix(ref, "refs/heads/"), true
		case line == "detached" && matched:
			return "", true
		}
	}
	return "", false
}
