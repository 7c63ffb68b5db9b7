package provision

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeops/cubeops/internal/resource"
	"github.com/cubeops/cubeops/internal/runner"
)

func TestComposeCreator_Commands(t *testing.T) {
	run := runner.NewDryRun()
	c := &ComposeCreator{Runner: run}
	res := &resource.Resource{
		Name: "postgres", Kind: resource.KindComposeService,
		Compose: &resource.ComposeSpec{Project: "cubedev", Service: "postgres", File: "/tmp/dc.yml"},
	}

	require.NoError(t, c.Create(context.Background(), res))
	require.NoError(t, c.Teardown(context.Background(), res))

	recorded := run.Recorded()
	require.Len(t, recorded, 2)
	assert.Equal(t, "docker compose -p cubedev -f /tmp/dc.yml up -d", recorded[0].String())
	assert.Equal(t, "docker compose -p cubedev -f /tmp/dc.yml down -v", recorded[1].String())
}

func TestWorktreeCreator_Commands(t *testing.T) {
	run := runner.NewDryRun()
	c := &WorktreeCreator{Runner: run}
	res := &resource.Resource{
		Name: "develop", Kind: resource.KindGitWorktree,
		Worktree: &resource.WorktreeSpec{RepoDir: "/src/cube", Path: "/src/cube-develop", Branch: "develop"},
	}

	require.NoError(t, c.Create(context.Background(), res))
	require.NoError(t, c.Teardown(context.Background(), res))

	recorded := run.Recorded()
	require.Len(t, recorded, 3)
	assert.Equal(t, "git -C /src/cube worktree add /src/cube-develop develop", recorded[0].String())
	assert.Equal(t, "git -C /src/cube worktree remove --force /src/cube-develop", recorded[1].String())
	assert.Equal(t, "git -C /src/cube worktree prune", recorded[2].String())
}

func TestLinkCreator(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "pkg")
	require.NoError(t, os.Mkdir(target, 0o755))

	res := &resource.Resource{
		Name: "core", Kind: resource.KindPackageLink,
		Link: &resource.LinkSpec{Path: filepath.Join(dir, "node_modules", "@cube", "core"), Target: target},
	}

	c := &LinkCreator{}
	require.NoError(t, c.Create(context.Background(), res))

	dest, err := os.Readlink(res.Link.Path)
	require.NoError(t, err)
	assert.Equal(t, target, dest)

	require.NoError(t, c.Teardown(context.Background(), res))
	_, err = os.Lstat(res.Link.Path)
	assert.True(t, os.IsNotExist(err))

	// Tearing down an already-removed link is not an error.
	require.NoError(t, c.Teardown(context.Background(), res))
}

func TestImagePullCreator_Commands(t *testing.T) {
	run := runner.NewDryRun()
	c := &ImagePullCreator{Runner: run}
	res := &resource.Resource{
		Name: "server", Kind: resource.KindDockerTag,
		Image: &resource.ImageTagSpec{Repository: "cubeops/server", Tag: "0.1.0"},
	}

	require.NoError(t, c.Create(context.Background(), res))
	require.NoError(t, c.Teardown(context.Background(), res))

	recorded := run.Recorded()
	require.Len(t, recorded, 2)
	assert.Equal(t, "docker pull cubeops/server:0.1.0", recorded[0].String())
	assert.Equal(t, "docker rmi cubeops/server:0.1.0", recorded[1].String())
}

func TestDefaultCreators_CoverEveryKind(t *testing.T) {
	creators := DefaultCreators(runner.NewDryRun())
	for _, kind := range []resource.Kind{
		resource.KindComposeService,
		resource.KindGitWorktree,
		resource.KindPackageLink,
		resource.KindDockerTag,
		resource.KindDBSchema,
		resource.KindTCPPort,
	} {
		assert.Contains(t, creators, kind)
	}
}
