package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/docker/client"
	"github.com/spf13/cobra"

	"github.com/cubeops/cubeops/internal/config"
	"github.com/cubeops/cubeops/internal/probe"
	"github.com/cubeops/cubeops/internal/provision"
	"github.com/cubeops/cubeops/internal/render"
	"github.com/cubeops/cubeops/internal/resource"
	"github.com/cubeops/cubeops/internal/runner"
)

var (
	dbType           string
	dbProjectName    string
	dbForceReinstall bool
	dbCleanup        bool
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Provision and manage the dev database",
	Long: `Brings up a development database (postgres, mysql, or doris) as a
Compose project, waits for it to accept connections, and loads the seed
schema. Re-running against a healthy database is a no-op.`,
}

var dbUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Bring the dev database up and seed it",
	RunE:  runDBUp,
}

var dbDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Tear the dev database down",
	RunE:  runDBDown,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the observed state of the dev database resources",
	RunE:  runDBStatus,
}

var dbSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the seed schema into the dev database",
	RunE:  runDBSeed,
}

func init() {
	dbCmd.PersistentFlags().StringVar(&dbType, "db-type", "", "Database type (postgres, mysql, doris)")
	dbCmd.PersistentFlags().StringVar(&dbProjectName, "project-name", "", "Compose project name")
	dbUpCmd.Flags().BoolVar(&dbForceReinstall, "force-reinstall-db", false, "Tear down and recreate even when healthy")
	dbDownCmd.Flags().BoolVar(&dbCleanup, "cleanup", false, "Also remove rendered files and the data volume")

	dbCmd.AddCommand(dbUpCmd)
	dbCmd.AddCommand(dbDownCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbSeedCmd)
}

func dbSettings(c *config.Config) config.DBConfig {
	return c.ResolveDB(dbType, dbProjectName)
}

// dbResources builds the resource list for the dev database, in dependency
// order: the compose service first, then its port, then the seed schema.
func dbResources(db config.DBConfig, composePath string) []*resource.Resource {
	return []*resource.Resource{
		{
			Name: db.Type,
			Kind: resource.KindComposeService,
			Compose: &resource.ComposeSpec{
				Project:       db.ProjectName,
				Service:       render.PrimaryService(db.Type),
				File:          composePath,
				Host:          db.Host,
				PublishedPort: db.Port,
			},
		},
		{
			Name: fmt.Sprintf("%s-port", db.Type),
			Kind: resource.KindTCPPort,
			Port: &resource.PortSpec{Host: db.Host, Port: db.Port},
		},
		{
			Name: fmt.Sprintf("%s-schema", db.Type),
			Kind: resource.KindDBSchema,
			Schema: &resource.SchemaSpec{
				Driver: db.Driver(),
				DSN:    db.DSN(),
				DBName: db.Name,
				Tables: render.SeedTables,
			},
		},
	}
}

// renderCompose writes the compose file for the database into its data
// directory and returns the path.
func renderCompose(db config.DBConfig) (string, error) {
	content, err := render.ComposeFile(db.Type, render.ComposeOptions{
		Project:  db.ProjectName,
		Port:     db.Port,
		Database: db.Name,
		User:     db.User,
		Password: db.Pass,
		DataDir:  db.DataDir,
	})
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(db.DataDir)
	if dir == "." || dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating compose directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("compose-%s.yaml", db.Type))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("writing compose file: %w", err)
	}
	return path, nil
}

func newProvisioner(mode provision.FailureMode) (*provision.Provisioner, *probe.Set, func(), error) {
	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating Docker client: %w", err)
	}
	run := &runner.ExecRunner{}
	probes := probe.NewSet(run, docker, nil)
	prov := provision.New(probes, provision.DefaultCreators(run), provision.WithMode(mode))
	return prov, probes, func() { docker.Close() }, nil
}

func runDBUp(cmd *cobra.Command, args []string) error {
	c, err := requireConfig()
	if err != nil {
		return err
	}
	db := dbSettings(c)

	composePath, err := renderCompose(db)
	if err != nil {
		return err
	}
	resources := dbResources(db, composePath)

	prov, _, closeDocker, err := newProvisioner(provision.FailFast)
	if err != nil {
		return err
	}
	defer closeDocker()

	if dbForceReinstall {
		if !confirm(fmt.Sprintf("Drop the %s database volume and reinstall?", db.Type)) {
			fmt.Println("Cancelled.")
			return nil
		}
		if err := prov.Teardown(cmd.Context(), resources); err != nil {
			return err
		}
	}

	plan, err := prov.BuildPlan(cmd.Context(), resources)
	if err != nil {
		return err
	}
	renderResourcePlan(plan)
	if !plan.Mutating() {
		fmt.Println("Database is already up. Nothing to do.")
		return nil
	}

	report, err := prov.Execute(cmd.Context(), plan)
	renderResourceReport(report, db.Type)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect the service logs with: docker compose -p %s logs %s\n",
			db.ProjectName, render.PrimaryService(db.Type))
	}
	return err
}

func runDBDown(cmd *cobra.Command, args []string) error {
	c, err := requireConfig()
	if err != nil {
		return err
	}
	db := dbSettings(c)

	if !confirm(fmt.Sprintf("Tear down the %s database (project %s)? Data will be lost", db.Type, db.ProjectName)) {
		fmt.Println("Cancelled.")
		return nil
	}

	composePath, err := renderCompose(db)
	if err != nil {
		return err
	}
	resources := dbResources(db, composePath)

	prov, _, closeDocker, err := newProvisioner(provision.BestEffort)
	if err != nil {
		return err
	}
	defer closeDocker()

	if err := prov.Teardown(cmd.Context(), resources); err != nil {
		return err
	}
	if dbCleanup {
		if err := os.Remove(composePath); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		if db.DataDir != "" {
			if err := os.RemoveAll(db.DataDir); err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			}
		}
	}
	fmt.Println("Database torn down.")
	return nil
}

func runDBStatus(cmd *cobra.Command, args []string) error {
	c, err := requireConfig()
	if err != nil {
		return err
	}
	db := dbSettings(c)

	composePath, err := renderCompose(db)
	if err != nil {
		return err
	}

	_, probes, closeDocker, err := newProvisioner(provision.BestEffort)
	if err != nil {
		return err
	}
	defer closeDocker()

	for _, res := range dbResources(db, composePath) {
		observed, err := probes.Probe(cmd.Context(), res)
		if err != nil {
			fmt.Printf("  %-40s error: %v\n", res.Address(), err)
			continue
		}
		fmt.Printf("  %-40s %s\n", res.Address(), observed)
	}
	// Point the operator at the service logs for anything unhealthy.
	fmt.Printf("\nLogs: docker compose -p %s logs %s\n", db.ProjectName, render.PrimaryService(db.Type))
	return nil
}

func runDBSeed(cmd *cobra.Command, args []string) error {
	c, err := requireConfig()
	if err != nil {
		return err
	}
	db := dbSettings(c)

	composePath, err := renderCompose(db)
	if err != nil {
		return err
	}
	// Only the schema resource; the database itself must already be up.
	resources := dbResources(db, composePath)
	schema := resources[len(resources)-1:]

	prov, _, closeDocker, err := newProvisioner(provision.FailFast)
	if err != nil {
		return err
	}
	defer closeDocker()

	plan, err := prov.BuildPlan(cmd.Context(), schema)
	if err != nil {
		return err
	}
	if !plan.Mutating() {
		fmt.Println("Seed schema already present.")
		return nil
	}
	report, err := prov.Execute(cmd.Context(), plan)
	renderResourceReport(report, db.Type)
	return err
}
