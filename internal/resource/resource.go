// Package resource defines the data model for externally provisioned
// things: what kind of resource it is, what state we want it in, and what
// state we last observed. Nothing here persists between invocations;
// idempotency comes from re-probing the external system every run.
package resource

import "fmt"

// Kind tags a resource with its probe/provision strategy.
type Kind string

const (
	KindGitWorktree    Kind = "git-worktree"
	KindComposeService Kind = "compose-service"
	KindTCPPort        Kind = "tcp-port"
	KindPackageLink    Kind = "package-link"
	KindDockerTag      Kind = "docker-tag"
	KindDBSchema       Kind = "db-schema"
)

// Resource is a named external thing with a desired-state descriptor.
// Exactly one of the kind-specific spec fields is set, matching Kind.
type Resource struct {
	Name string
	Kind Kind

	Worktree *WorktreeSpec
	Compose  *ComposeSpec
	Port     *PortSpec
	Link     *LinkSpec
	Image    *ImageTagSpec
	Schema   *SchemaSpec
}

// Address returns the stable identifier used in plans and reports.
func (r *Resource) Address() string {
	return fmt.Sprintf("%s.%s", r.Kind, r.Name)
}

// WorktreeSpec describes a git worktree checked out at Path for Branch,
// registered against the repository at RepoDir.
type WorktreeSpec struct {
	RepoDir string
	Path    string
	Branch  string
}

// ComposeSpec describes a service of a Docker Compose project.
type ComposeSpec struct {
	Project       string
	Service       string
	File          string // rendered compose file path
	Host          string // host to dial for the readiness check, empty means 127.0.0.1
	PublishedPort int    // host port to connect to for the readiness check, 0 to skip
}

// PortSpec describes a TCP endpoint that should accept connections.
type PortSpec struct {
	Host string
	Port int
}

// LinkSpec describes a symlink at Path resolving to Target.
type LinkSpec struct {
	Path   string
	Target string
}

// ImageTagSpec describes a Docker image name:tag expected to exist locally
// or in the remote registry.
type ImageTagSpec struct {
	Repository string
	Tag        string
}

// Ref returns the image reference in name:tag form.
func (s *ImageTagSpec) Ref() string {
	return s.Repository + ":" + s.Tag
}

// SchemaSpec describes a database that should accept connections and
// contain the seed schema tables.
type SchemaSpec struct {
	Driver string // "mysql" or "pgx"
	DSN    string
	DBName string
	Tables []string
}
