// Package render produces the generated artifacts: the container build
// descriptor, per-database compose descriptors, the .env connection file,
// the IDE launch configuration, and the SQL seed schema. Templates are
// static; only placeholder substitution happens here.
package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

//go:embed templates/dockerfile.tmpl
var dockerfileTmpl string

//go:embed templates/launch.json.tmpl
var launchTmpl string

//go:embed templates/seed.sql
var seedSQL string

// DockerfileOptions parameterize the rendered container build descriptor.
type DockerfileOptions struct {
	BaseImage       string
	InstallCommands []string // driver/toolchain install steps, one RUN each
	Port            int
	Entrypoint      string
}

// Dockerfile renders the container build descriptor.
func Dockerfile(opts DockerfileOptions) (string, error) {
	if opts.BaseImage == "" {
		return "", fmt.Errorf("base image is required")
	}
	if opts.Port == 0 {
		opts.Port = 4000
	}
	if opts.Entrypoint == "" {
		opts.Entrypoint = "yarn"
	}
	return execTemplate("dockerfile", dockerfileTmpl, opts)
}

// LaunchOptions parameterize the IDE launch/debug configuration.
type LaunchOptions struct {
	ServerDir string
	EnvFile   string
	DebugPort int
}

// LaunchConfig renders the IDE launch configuration with attach and launch
// entries for the dev server.
func LaunchConfig(opts LaunchOptions) (string, error) {
	if opts.ServerDir == "" {
		return "", fmt.Errorf("server directory is required")
	}
	if opts.DebugPort == 0 {
		opts.DebugPort = 9229
	}
	return execTemplate("launch", launchTmpl, opts)
}

// ConnectionParams describe how the packaged server reaches a database.
type ConnectionParams struct {
	Type string // postgres | mysql | doris
	Host string
	Port int
	Name string
	User string
	Pass string
}

// EnvFile renders the .env consumed by the packaged server, including any
// extra CUBEJS_* settings. Extra keys are emitted in sorted order so the
// file is stable across runs.
func EnvFile(params ConnectionParams, extra map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CUBEJS_DB_TYPE=%s\n", params.Type)
	fmt.Fprintf(&b, "CUBEJS_DB_HOST=%s\n", params.Host)
	fmt.Fprintf(&b, "CUBEJS_DB_PORT=%d\n", params.Port)
	fmt.Fprintf(&b, "CUBEJS_DB_NAME=%s\n", params.Name)
	fmt.Fprintf(&b, "CUBEJS_DB_USER=%s\n", params.User)
	fmt.Fprintf(&b, "CUBEJS_DB_PASS=%s\n", params.Pass)

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, extra[k])
	}
	return b.String()
}

// SeedTables are the tables the seed schema creates, in creation order.
var SeedTables = []string{"products", "orders", "order_items"}

// SeedStatements returns the seed schema split into individual statements,
// ready for ExecContext. database/sql drivers reject multi-statement
// strings by default.
func SeedStatements() []string {
	var stmts []string
	for _, raw := range strings.Split(seedSQL, ";") {
		stmt := strings.TrimSpace(raw)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func execTemplate(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s template: %w", name, err)
	}
	return buf.String(), nil
}
