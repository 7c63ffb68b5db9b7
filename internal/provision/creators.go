package provision

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cubeops/cubeops/internal/logging"
	"github.com/cubeops/cubeops/internal/render"
	"github.com/cubeops/cubeops/internal/resource"
	"github.com/cubeops/cubeops/internal/runner"
)

// DefaultCreators wires the standard creator for every resource kind.
func DefaultCreators(run runner.Runner) map[resource.Kind]Creator {
	return map[resource.Kind]Creator{
		resource.KindComposeService: &ComposeCreator{Runner: run},
		resource.KindGitWorktree:    &WorktreeCreator{Runner: run},
		resource.KindPackageLink:    &LinkCreator{},
		resource.KindDockerTag:      &ImagePullCreator{Runner: run},
		resource.KindDBSchema:       &SchemaCreator{},
		resource.KindTCPPort:        noopCreator{},
	}
}

// ComposeCreator brings compose services up and down. The compose file is
// rendered by the caller before provisioning; the creator only runs the
// compose CLI against it.
type ComposeCreator struct {
	Runner runner.Runner
}

func (c *ComposeCreator) Create(ctx context.Context, res *resource.Resource) error {
	spec := res.Compose
	cmd := runner.Command{
		Name:   "docker",
		Args:   []string{"compose", "-p", spec.Project, "-f", spec.File, "up", "-d"},
		Stream: true,
	}
	out, err := c.Runner.Run(ctx, cmd)
	return runner.Check(out, err, cmd)
}

func (c *ComposeCreator) Teardown(ctx context.Context, res *resource.Resource) error {
	spec := res.Compose
	cmd := runner.Command{
		Name: "docker",
		Args: []string{"compose", "-p", spec.Project, "-f", spec.File, "down", "-v"},
	}
	out, err := c.Runner.Run(ctx, cmd)
	return runner.Check(out, err, cmd)
}

// WorktreeCreator manages git worktrees through the git CLI.
type WorktreeCreator struct {
	Runner runner.Runner
}

func (c *WorktreeCreator) Create(ctx context.Context, res *resource.Resource) error {
	spec := res.Worktree
	cmd := runner.Command{
		Name: "git",
		Args: []string{"-C", spec.RepoDir, "worktree", "add", spec.Path, spec.Branch},
	}
	out, err := c.Runner.Run(ctx, cmd)
	return runner.Check(out, err, cmd)
}

// Teardown unregisters and removes the worktree directory. A directory
// that is not a registered worktree (the degraded case) still gets
// removed so Create starts from a clean slate.
func (c *WorktreeCreator) Teardown(ctx context.Context, res *resource.Resource) error {
	spec := res.Worktree

	rm := runner.Command{
		Name: "git",
		Args: []string{"-C", spec.RepoDir, "worktree", "remove", "--force", spec.Path},
	}
	if out, err := c.Runner.Run(ctx, rm); err != nil {
		return err
	} else if out.ExitCode != 0 {
		logging.Debug("worktree remove refused, deleting directory", "path", spec.Path, "stderr", out.Stderr)
		if err := os.RemoveAll(spec.Path); err != nil {
			return fmt.Errorf("removing %s: %w", spec.Path, err)
		}
	}

	prune := runner.Command{Name: "git", Args: []string{"-C", spec.RepoDir, "worktree", "prune"}}
	out, err := c.Runner.Run(ctx, prune)
	return runner.Check(out, err, prune)
}

// LinkCreator manages package symlinks directly on the filesystem.
type LinkCreator struct{}

func (c *LinkCreator) Create(ctx context.Context, res *resource.Resource) error {
	spec := res.Link
	if err := os.MkdirAll(filepath.Dir(spec.Path), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", spec.Path, err)
	}
	if err := os.Symlink(spec.Target, spec.Path); err != nil {
		return fmt.Errorf("linking %s -> %s: %w", spec.Path, spec.Target, err)
	}
	return nil
}

func (c *LinkCreator) Teardown(ctx context.Context, res *resource.Resource) error {
	if err := os.Remove(res.Link.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unlinking %s: %w", res.Link.Path, err)
	}
	return nil
}

// ImagePullCreator makes an image tag present locally by pulling it.
type ImagePullCreator struct {
	Runner runner.Runner
}

func (c *ImagePullCreator) Create(ctx context.Context, res *resource.Resource) error {
	cmd := runner.Command{Name: "docker", Args: []string{"pull", res.Image.Ref()}, Stream: true}
	out, err := c.Runner.Run(ctx, cmd)
	return runner.Check(out, err, cmd)
}

func (c *ImagePullCreator) Teardown(ctx context.Context, res *resource.Resource) error {
	cmd := runner.Command{Name: "docker", Args: []string{"rmi", res.Image.Ref()}}
	out, err := c.Runner.Run(ctx, cmd)
	return runner.Check(out, err, cmd)
}

// SchemaCreator applies the seed schema through database/sql and drops it
// on teardown.
type SchemaCreator struct {
	// openDB overrides database opening in tests.
	openDB func(driver, dsn string) (*sql.DB, error)
}

func (c *SchemaCreator) open(spec *resource.SchemaSpec) (*sql.DB, error) {
	open := c.openDB
	if open == nil {
		open = sql.Open
	}
	return open(spec.Driver, spec.DSN)
}

func (c *SchemaCreator) Create(ctx context.Context, res *resource.Resource) error {
	spec := res.Schema
	db, err := c.open(spec)
	if err != nil {
		return fmt.Errorf("opening %s connection: %w", spec.Driver, err)
	}
	defer db.Close()

	for _, stmt := range render.SeedStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying seed schema to %s: %w", spec.DBName, err)
		}
	}
	return nil
}

func (c *SchemaCreator) Teardown(ctx context.Context, res *resource.Resource) error {
	spec := res.Schema
	db, err := c.open(spec)
	if err != nil {
		return fmt.Errorf("opening %s connection: %w", spec.Driver, err)
	}
	defer db.Close()

	// Reverse creation order so foreign keys don't block the drops.
	for i := len(render.SeedTables) - 1; i >= 0; i-- {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+render.SeedTables[i]); err != nil {
			return fmt.Errorf("dropping %s: %w", render.SeedTables[i], err)
		}
	}
	return nil
}

// noopCreator covers kinds that cannot be created directly. A tcp-port is
// opened by whatever service owns it; provisioning one just waits for it.
type noopCreator struct{}

func (noopCreator) Create(ctx context.Context, res *resource.Resource) error   { return nil }
func (noopCreator) Teardown(ctx context.Context, res *resource.Resource) error { return nil }
