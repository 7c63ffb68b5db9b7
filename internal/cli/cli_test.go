package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeops/cubeops/internal/config"
	"github.com/cubeops/cubeops/internal/render"
)

func withPromptInput(t *testing.T, input string) {
	t.Helper()
	old := promptIn
	promptIn = strings.NewReader(input)
	t.Cleanup(func() { promptIn = old })
}

func TestConfirmDeclined(t *testing.T) {
	flagYes = false
	withPromptInput(t, "n\n")

	invoked := false
	if confirm("Drop everything?") {
		invoked = true
	}
	assert.False(t, invoked)
}

func TestConfirmAccepts(t *testing.T) {
	flagYes = false
	for _, answer := range []string{"y\n", "yes\n", "Y\n"} {
		withPromptInput(t, answer)
		assert.True(t, confirm("Proceed?"), "answer %q", answer)
	}
}

func TestConfirmEmptyInputDeclines(t *testing.T) {
	flagYes = false
	withPromptInput(t, "")
	assert.False(t, confirm("Proceed?"))
}

func TestConfirmYesFlagSkipsPrompt(t *testing.T) {
	flagYes = true
	t.Cleanup(func() { flagYes = false })
	// No input available; the flag alone must approve.
	withPromptInput(t, "")
	assert.True(t, confirm("Proceed?"))
}

func TestRegistryCredentialsFromConfig(t *testing.T) {
	c := &config.Config{}
	c.Registry.Username = "publisher"
	c.Registry.Password = "hunter2"

	user, pass, err := registryCredentials(c)()
	require.NoError(t, err)
	assert.Equal(t, "publisher", user)
	assert.Equal(t, "hunter2", pass)
}

func TestRegistryCredentialsMissingWithoutTerminal(t *testing.T) {
	// Test stdin is not a terminal, so missing credentials must fail
	// instead of prompting.
	_, _, err := registryCredentials(&config.Config{})()
	assert.Error(t, err)
}

func TestDBResourcesOrder(t *testing.T) {
	db := config.DBConfig{
		Type:        render.DBMySQL,
		ProjectName: "demo",
		Host:        "127.0.0.1",
		Port:        3306,
		Name:        "cube_dev",
		User:        "cube",
		Pass:        "cube",
	}

	resources := dbResources(db, "/tmp/compose-mysql.yaml")
	require.Len(t, resources, 3)
	assert.Equal(t, "compose-service.mysql", resources[0].Address())
	assert.Equal(t, "tcp-port.mysql-port", resources[1].Address())
	assert.Equal(t, "db-schema.mysql-schema", resources[2].Address())
	assert.Equal(t, "mysql", resources[0].Compose.Service)
	assert.Equal(t, "127.0.0.1", resources[0].Compose.Host)
	assert.Equal(t, render.SeedTables, resources[2].Schema.Tables)
}

func TestDBSettingsTypeFlagAppliesEnvOverlay(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("MYSQL_DB_HOST", "mysql.internal")
	t.Setenv("MYSQL_DB_PASS", "envsecret")

	cfg, err := config.Load("")
	require.NoError(t, err)

	dbType = render.DBMySQL
	t.Cleanup(func() { dbType = "" })

	db := dbSettings(cfg)
	assert.Equal(t, render.DBMySQL, db.Type)
	assert.Equal(t, "mysql.internal", db.Host)
	assert.Equal(t, "envsecret", db.Pass)
	assert.Equal(t, 3306, db.Port)
}

func TestDevWithDBFlagDefaults(t *testing.T) {
	setup := devSetupCmd.Flags().Lookup("with-db")
	require.NotNil(t, setup)
	assert.Equal(t, "true", setup.DefValue)
	assert.True(t, devSetupWithDB)

	teardown := devTeardownCmd.Flags().Lookup("with-db")
	require.NotNil(t, teardown)
	assert.Equal(t, "false", teardown.DefValue)
	assert.False(t, devTeardownWithDB)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "a", firstNonEmpty("", "a", "b"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
