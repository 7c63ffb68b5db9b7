package cli

import (
	"fmt"

	"github.com/docker/docker/client"
	"github.com/spf13/cobra"

	"github.com/cubeops/cubeops/internal/pipeline"
	"github.com/cubeops/cubeops/internal/registry"
	"github.com/cubeops/cubeops/internal/runner"
)

var (
	imageBuildOnly   bool
	imagePushOnly    bool
	imagePushVersion bool
	imageSkipSmoke   bool
	imageBaseImage   string
	imageName        string
	imageTag         string
	imageRemoteName  string
	imageRemoteTag   string
	imageBranch      string
	imageDevelop     bool
	imageServerDir   string
)

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Build, smoke-test, and publish the server image",
	Long: `Builds the analytics server from source, packages it into a Docker
image, boots it once as a smoke test, then tags and pushes the image to the
registry together with a latest alias and an auto-incremented version tag.`,
	RunE: runImage,
}

func init() {
	imageCmd.Flags().BoolVar(&imageBuildOnly, "build-only", false, "Build and smoke-test without pushing")
	imageCmd.Flags().BoolVar(&imagePushOnly, "push-only", false, "Push an already-built local image")
	imageCmd.Flags().BoolVar(&imagePushVersion, "push-version", true, "Also push an auto-incremented semantic version tag")
	imageCmd.Flags().BoolVar(&imageSkipSmoke, "skip-smoke", false, "Skip the post-build container smoke test")
	imageCmd.Flags().StringVar(&imageBaseImage, "base-image", "", "Base image for the build")
	imageCmd.Flags().StringVar(&imageName, "image-name", "", "Local image name")
	imageCmd.Flags().StringVar(&imageTag, "image-tag", "", "Local image tag")
	imageCmd.Flags().StringVar(&imageRemoteName, "remote-image-name", "", "Remote repository to push to")
	imageCmd.Flags().StringVar(&imageRemoteTag, "remote-image-tag", "", "Remote tag to push")
	imageCmd.Flags().StringVar(&imageBranch, "branch", "", "Branch to build from")
	imageCmd.Flags().BoolVar(&imageDevelop, "develop", false, "Merge the develop branch before building")
	imageCmd.Flags().StringVar(&imageServerDir, "server-dir", "", "Server source checkout to build")
}

func runImage(cmd *cobra.Command, args []string) error {
	c, err := requireConfig()
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		RepoDir:     firstNonEmpty(imageServerDir, c.Dev.ServerDir),
		Remote:      c.Dev.Remote,
		Branch:      firstNonEmpty(imageBranch, c.Dev.Branch),
		BaseImage:   firstNonEmpty(imageBaseImage, c.Image.BaseImage),
		ImageName:   firstNonEmpty(imageName, c.Image.Name),
		ImageTag:    firstNonEmpty(imageTag, c.Image.Tag),
		RemoteImage: firstNonEmpty(imageRemoteName, c.Image.RemoteName),
		RemoteTag:   firstNonEmpty(imageRemoteTag, c.Image.RemoteTag),
		PushLatest:  true,
		PushVersion: imagePushVersion,
		BuildOnly:   imageBuildOnly,
		PushOnly:    imagePushOnly,
		SkipSmoke:   imageSkipSmoke,
		SmokePort:   c.Dev.ServerPort,
		Stream:      true,
	}
	if opts.RepoDir == "" && !opts.PushOnly {
		return fmt.Errorf("no server source directory: pass --server-dir or set dev.server_dir")
	}
	if imageBuildOnly && imagePushOnly {
		return fmt.Errorf("--build-only and --push-only are mutually exclusive")
	}

	if imageDevelop {
		if !confirm(fmt.Sprintf("Merge %s/develop into %s before building?", opts.Remote, opts.Branch)) {
			fmt.Println("Cancelled.")
			return nil
		}
		opts.MergeBranch = "develop"
	}

	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("creating Docker client: %w", err)
	}
	defer docker.Close()

	p := pipeline.New(opts, &runner.ExecRunner{}, docker,
		registry.NewHTTPTagLister(c.Registry.URL), registryCredentials(c))

	report, err := p.Run(cmd.Context())
	renderPipelineReport(report)
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
