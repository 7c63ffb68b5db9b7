// Package config resolves the tool's configuration from defaults, an
// optional YAML file, and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/cubeops/cubeops/internal/render"
)

const (
	// AppName is the binary and config directory name.
	AppName = "cubeops"

	configFileName = "config"
	configFileExt  = "yaml"
)

// Config is the fully resolved configuration for one invocation.
type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Image    ImageConfig    `mapstructure:"image"`
	Registry RegistryConfig `mapstructure:"registry"`
	DB       DBConfig       `mapstructure:"db"`
	Dev      DevConfig      `mapstructure:"dev"`

	// dbBase holds the database settings before the environment overlay,
	// so a later type override re-resolves against the right env prefix.
	dbBase DBConfig
}

// ImageConfig names the local and remote image references.
type ImageConfig struct {
	Name       string `mapstructure:"name"`
	Tag        string `mapstructure:"tag"`
	RemoteName string `mapstructure:"remote_name"`
	RemoteTag  string `mapstructure:"remote_tag"`
	BaseImage  string `mapstructure:"base_image"`
}

// RegistryConfig points at the publish target. Credentials come from
// DOCKER_USERNAME / DOCKER_PASSWORD, never from the config file.
type RegistryConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"-"`
	Password string `mapstructure:"-"`
}

// DBConfig describes the dev database to provision.
type DBConfig struct {
	Type        string `mapstructure:"type"`
	ProjectName string `mapstructure:"project_name"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Name        string `mapstructure:"name"`
	User        string `mapstructure:"user"`
	Pass        string `mapstructure:"pass"`
	DataDir     string `mapstructure:"data_dir"`
}

// DevConfig describes the server source tree the dev workflow operates on.
type DevConfig struct {
	ServerDir   string `mapstructure:"server_dir"`
	Remote      string `mapstructure:"remote"`
	Branch      string `mapstructure:"branch"`
	MergeBranch string `mapstructure:"merge_branch"`
	DebugPort   int    `mapstructure:"debug_port"`
	ServerPort  int    `mapstructure:"server_port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("image.name", "cubeops/cube-server")
	v.SetDefault("image.tag", "dev")
	v.SetDefault("image.remote_name", "cubeops/cube-server")
	v.SetDefault("image.remote_tag", "latest")
	v.SetDefault("image.base_image", "node:20-alpine")

	v.SetDefault("registry.url", "https://registry-1.docker.io")

	v.SetDefault("db.type", render.DBPostgres)
	v.SetDefault("db.project_name", AppName)
	v.SetDefault("db.host", "127.0.0.1")
	v.SetDefault("db.name", "cube_dev")
	v.SetDefault("db.user", "cube")
	v.SetDefault("db.pass", "cube")

	v.SetDefault("dev.remote", "origin")
	v.SetDefault("dev.branch", "master")
	v.SetDefault("dev.debug_port", 9229)
	v.SetDefault("dev.server_port", 4000)
}

// Load resolves configuration. path may name an explicit config file; when
// empty the standard locations are searched and a missing file is fine.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileExt)
		v.AddConfigPath(".")
		if dir, err := configDir(); err == nil {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Registry.Username = os.Getenv("DOCKER_USERNAME")
	cfg.Registry.Password = os.Getenv("DOCKER_PASSWORD")
	cfg.dbBase = cfg.DB
	cfg.DB = cfg.ResolveDB("", "")
	return &cfg, nil
}

// ResolveDB returns the database settings with the given type and project
// overrides applied and the <TYPE>_DB_* environment laid on top. The overlay
// uses the effective type's prefix, so a --db-type override after Load still
// honors that type's environment variables.
func (c *Config) ResolveDB(typeName, project string) DBConfig {
	db := c.dbBase
	if typeName != "" {
		db.Type = typeName
	}
	if project != "" {
		db.ProjectName = project
	}
	applyDBEnv(&db)

	if db.Port == 0 {
		db.Port = render.DefaultPort(db.Type)
	}
	if db.DataDir == "" {
		if dir, err := configDir(); err == nil {
			db.DataDir = filepath.Join(dir, "data", db.Type)
		}
	}
	return db
}

// applyDBEnv overlays <TYPE>_DB_HOST/PORT/NAME/USER/PASS onto the resolved
// database settings.
func applyDBEnv(db *DBConfig) {
	prefix := strings.ToUpper(db.Type) + "_DB_"
	if v := os.Getenv(prefix + "HOST"); v != "" {
		db.Host = v
	}
	if v := os.Getenv(prefix + "PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			db.Port = port
		}
	}
	if v := os.Getenv(prefix + "NAME"); v != "" {
		db.Name = v
	}
	if v := os.Getenv(prefix + "USER"); v != "" {
		db.User = v
	}
	if v := os.Getenv(prefix + "PASS"); v != "" {
		db.Pass = v
	}
}

// Connection converts the database settings into the connection parameters
// the rendered artifacts consume.
func (db DBConfig) Connection() render.ConnectionParams {
	return render.ConnectionParams{
		Type: db.Type,
		Host: db.Host,
		Port: db.Port,
		Name: db.Name,
		User: db.User,
		Pass: db.Pass,
	}
}

// DSN builds the driver connection string for the configured database.
// Doris speaks the MySQL wire protocol.
func (db DBConfig) DSN() string {
	switch db.Type {
	case render.DBPostgres:
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			db.User, db.Pass, db.Host, db.Port, db.Name)
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", db.User, db.Pass, db.Host, db.Port, db.Name)
	}
}

// Driver names the database/sql driver for the configured database.
func (db DBConfig) Driver() string {
	if db.Type == render.DBPostgres {
		return "pgx"
	}
	return "mysql"
}

// CubeEnv collects CUBEJS_* variables from the process environment so they
// can be passed through to the rendered .env file.
func CubeEnv() map[string]string {
	out := map[string]string{}
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "CUBEJS_") {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

func configDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, AppName), nil
}
