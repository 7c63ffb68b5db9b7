package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeops/cubeops/internal/render"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "cubeops/cube-server", cfg.Image.Name)
	assert.Equal(t, render.DBPostgres, cfg.DB.Type)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, "origin", cfg.Dev.Remote)
	assert.NotEmpty(t, cfg.DB.DataDir)
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cubeops.yaml")
	content := `
log_level: debug
image:
  name: example/server
  tag: rc1
db:
  type: mysql
  project_name: demo
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "example/server", cfg.Image.Name)
	assert.Equal(t, "rc1", cfg.Image.Tag)
	assert.Equal(t, render.DBMySQL, cfg.DB.Type)
	assert.Equal(t, "demo", cfg.DB.ProjectName)
	// Type-specific default port kicks in when the file omits it.
	assert.Equal(t, 3306, cfg.DB.Port)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDBEnvOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("POSTGRES_DB_HOST", "db.internal")
	t.Setenv("POSTGRES_DB_PORT", "15432")
	t.Setenv("POSTGRES_DB_USER", "analyst")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 15432, cfg.DB.Port)
	assert.Equal(t, "analyst", cfg.DB.User)
}

func TestResolveDBTypeOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("MYSQL_DB_HOST", "mysql.internal")
	t.Setenv("MYSQL_DB_PASS", "envsecret")

	cfg, err := Load("")
	require.NoError(t, err)

	// The config defaults to postgres, so the mysql overlay is not
	// visible at load time.
	assert.Equal(t, render.DBPostgres, cfg.DB.Type)
	assert.NotEqual(t, "mysql.internal", cfg.DB.Host)

	// A type override re-resolves the overlay against the new prefix.
	db := cfg.ResolveDB(render.DBMySQL, "demo")
	assert.Equal(t, render.DBMySQL, db.Type)
	assert.Equal(t, "demo", db.ProjectName)
	assert.Equal(t, "mysql.internal", db.Host)
	assert.Equal(t, "envsecret", db.Pass)
	assert.Equal(t, 3306, db.Port)
}

func TestRegistryCredentialsFromEnv(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DOCKER_USERNAME", "publisher")
	t.Setenv("DOCKER_PASSWORD", "hunter2")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "publisher", cfg.Registry.Username)
	assert.Equal(t, "hunter2", cfg.Registry.Password)
}

func TestDSNAndDriver(t *testing.T) {
	pg := DBConfig{Type: render.DBPostgres, Host: "h", Port: 5432, Name: "d", User: "u", Pass: "p"}
	assert.Equal(t, "pgx", pg.Driver())
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", pg.DSN())

	doris := DBConfig{Type: render.DBDoris, Host: "h", Port: 9030, Name: "d", User: "root", Pass: ""}
	assert.Equal(t, "mysql", doris.Driver())
	assert.Equal(t, "root:@tcp(h:9030)/d", doris.DSN())
}

func TestCubeEnvPassthrough(t *testing.T) {
	t.Setenv("CUBEJS_DEV_MODE", "true")
	t.Setenv("CUBEJS_API_SECRET", "s3cret")
	t.Setenv("UNRELATED", "x")

	env := CubeEnv()
	assert.Equal(t, "true", env["CUBEJS_DEV_MODE"])
	assert.Equal(t, "s3cret", env["CUBEJS_API_SECRET"])
	assert.NotContains(t, env, "UNRELATED")
}
