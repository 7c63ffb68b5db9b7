package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cubeops/cubeops/internal/config"
	"github.com/cubeops/cubeops/internal/provision"
	"github.com/cubeops/cubeops/internal/render"
	"github.com/cubeops/cubeops/internal/resource"
)

var (
	devBranch         string
	devDevelop        bool
	devPath           string
	devWatch          bool
	devSetupWithDB    bool
	devTeardownWithDB bool
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Set up and tear down a development workspace",
	Long: `Creates a git worktree for the requested branch, links the server
package into it, renders the IDE launch configuration and .env file, and
optionally brings up the dev database and a background compile watcher.`,
}

var devSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the dev worktree, launch config, and env file",
	RunE:  runDevSetup,
}

var devTeardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Remove the dev worktree and its links",
	RunE:  runDevTeardown,
}

func init() {
	devCmd.PersistentFlags().StringVar(&devBranch, "branch", "", "Branch to work on")
	devCmd.PersistentFlags().BoolVar(&devDevelop, "develop", false, "Shorthand for --branch develop")
	devCmd.PersistentFlags().StringVar(&devPath, "path", "", "Worktree location (default <server-dir>-<branch>)")
	devSetupCmd.Flags().BoolVar(&devWatch, "watch", false, "Spawn a background compile watcher")
	devSetupCmd.Flags().BoolVar(&devSetupWithDB, "with-db", true, "Also bring the dev database up")
	devTeardownCmd.Flags().BoolVar(&devTeardownWithDB, "with-db", false, "Also tear the dev database down")

	devCmd.AddCommand(devSetupCmd)
	devCmd.AddCommand(devTeardownCmd)
}

func devWorktree(c *config.Config) (branch, path string, err error) {
	if c.Dev.ServerDir == "" {
		return "", "", fmt.Errorf("dev.server_dir is not configured")
	}
	branch = firstNonEmpty(devBranch, c.Dev.Branch)
	if devDevelop && devBranch == "" {
		branch = "develop"
	}
	path = devPath
	if path == "" {
		path = fmt.Sprintf("%s-%s", filepath.Clean(c.Dev.ServerDir), filepath.Base(branch))
	}
	return branch, path, nil
}

// devResources lists the workspace resources: the worktree plus a link that
// exposes the worktree build output inside the server tree.
func devResources(c *config.Config, branch, path string) []*resource.Resource {
	return []*resource.Resource{
		{
			Name: filepath.Base(branch),
			Kind: resource.KindGitWorktree,
			Worktree: &resource.WorktreeSpec{
				RepoDir: c.Dev.ServerDir,
				Path:    path,
				Branch:  branch,
			},
		},
		{
			Name: "server-link",
			Kind: resource.KindPackageLink,
			Link: &resource.LinkSpec{
				Path:   filepath.Join(c.Dev.ServerDir, ".dev-worktree"),
				Target: path,
			},
		},
	}
}

func runDevSetup(cmd *cobra.Command, args []string) error {
	c, err := requireConfig()
	if err != nil {
		return err
	}
	branch, path, err := devWorktree(c)
	if err != nil {
		return err
	}

	prov, _, closeDocker, err := newProvisioner(provision.FailFast)
	if err != nil {
		return err
	}
	defer closeDocker()

	resources := devResources(c, branch, path)
	if devSetupWithDB {
		db := dbSettings(c)
		composePath, err := renderCompose(db)
		if err != nil {
			return err
		}
		resources = append(resources, dbResources(db, composePath)...)
	}

	plan, err := prov.BuildPlan(cmd.Context(), resources)
	if err != nil {
		return err
	}
	renderResourcePlan(plan)

	if plan.Mutating() {
		report, err := prov.Execute(cmd.Context(), plan)
		renderResourceReport(report, "dev workspace")
		if err != nil {
			return err
		}
	}

	envPath := filepath.Join(path, ".env")
	env := render.EnvFile(dbSettings(c).Connection(), config.CubeEnv())
	if err := os.WriteFile(envPath, []byte(env), 0o600); err != nil {
		return fmt.Errorf("writing env file: %w", err)
	}

	launch, err := render.LaunchConfig(render.LaunchOptions{
		ServerDir: path,
		EnvFile:   envPath,
		DebugPort: c.Dev.DebugPort,
	})
	if err != nil {
		return err
	}
	launchDir := filepath.Join(path, ".vscode")
	if err := os.MkdirAll(launchDir, 0o755); err != nil {
		return fmt.Errorf("creating launch config directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(launchDir, "launch.json"), []byte(launch), 0o644); err != nil {
		return fmt.Errorf("writing launch config: %w", err)
	}

	if devWatch {
		logPath := filepath.Join(path, "watch.log")
		task, err := tracker.Spawn("compile-watch", "yarn", []string{"watch"}, path, logPath)
		if err != nil {
			return err
		}
		fmt.Printf("Compile watcher running (pid %d), output in %s\n", task.PID, logPath)
	}

	fmt.Printf("Dev workspace ready at %s\n", path)
	return nil
}

func runDevTeardown(cmd *cobra.Command, args []string) error {
	c, err := requireConfig()
	if err != nil {
		return err
	}
	branch, path, err := devWorktree(c)
	if err != nil {
		return err
	}

	if !confirm(fmt.Sprintf("Force-remove the worktree at %s?", path)) {
		fmt.Println("Cancelled.")
		return nil
	}

	prov, _, closeDocker, err := newProvisioner(provision.BestEffort)
	if err != nil {
		return err
	}
	defer closeDocker()

	resources := devResources(c, branch, path)
	if devTeardownWithDB {
		db := dbSettings(c)
		composePath, err := renderCompose(db)
		if err != nil {
			return err
		}
		resources = append(resources, dbResources(db, composePath)...)
	}

	if err := prov.Teardown(cmd.Context(), resources); err != nil {
		return err
	}
	fmt.Println("Dev workspace removed.")
	return nil
}
