package render

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Database kinds this tooling can bring up.
const (
	DBPostgres = "postgres"
	DBMySQL    = "mysql"
	DBDoris    = "doris"
)

// ComposeOptions parameterize a rendered compose descriptor.
type ComposeOptions struct {
	Project  string
	Port     int // published port for the primary service
	Database string
	User     string
	Password string
	DataDir  string // host path for the persistent volume; empty uses a named volume
}

type composeFile struct {
	Services map[string]*composeService `yaml:"services"`
	Volumes  map[string]*struct{}       `yaml:"volumes,omitempty"`
}

type composeService struct {
	Image       string             `yaml:"image"`
	Command     []string           `yaml:"command,omitempty"`
	Environment map[string]string  `yaml:"environment,omitempty"`
	Ports       []string           `yaml:"ports,omitempty"`
	Volumes     []string           `yaml:"volumes,omitempty"`
	DependsOn   []string           `yaml:"depends_on,omitempty"`
	Healthcheck *composeHealth     `yaml:"healthcheck,omitempty"`
	Deploy      *composeDeploy     `yaml:"deploy,omitempty"`
	Ulimits     map[string]int     `yaml:"ulimits,omitempty"`
}

type composeHealth struct {
	Test     []string `yaml:"test"`
	Interval string   `yaml:"interval"`
	Timeout  string   `yaml:"timeout"`
	Retries  int      `yaml:"retries"`
}

type composeDeploy struct {
	Replicas int `yaml:"replicas"`
}

// PrimaryService returns the compose service name whose readiness gates
// the whole stack for the given database kind.
func PrimaryService(dbType string) string {
	if dbType == DBDoris {
		return "doris-fe"
	}
	return dbType
}

// DefaultPort returns the conventional published port per database kind.
func DefaultPort(dbType string) int {
	switch dbType {
	case DBPostgres:
		return 5432
	case DBMySQL:
		return 3306
	case DBDoris:
		return 9030 // FE MySQL-protocol port
	}
	return 0
}

// ComposeFile renders the multi-service compose descriptor for the given
// database kind.
func ComposeFile(dbType string, opts ComposeOptions) ([]byte, error) {
	var file *composeFile
	switch dbType {
	case DBPostgres:
		file = postgresCompose(opts)
	case DBMySQL:
		file = mysqlCompose(opts)
	case DBDoris:
		file = dorisCompose(opts)
	default:
		return nil, fmt.Errorf("unknown database type %q", dbType)
	}
	return yaml.Marshal(file)
}

func dataVolume(opts ComposeOptions, containerPath string) (mount string, named bool) {
	if opts.DataDir != "" {
		return opts.DataDir + ":" + containerPath, false
	}
	return "dbdata:" + containerPath, true
}

func postgresCompose(opts ComposeOptions) *composeFile {
	mount, named := dataVolume(opts, "/var/lib/postgresql/data")
	f := &composeFile{
		Services: map[string]*composeService{
			"postgres": {
				Image: "postgres:16",
				Environment: map[string]string{
					"POSTGRES_DB":       opts.Database,
					"POSTGRES_USER":     opts.User,
					"POSTGRES_PASSWORD": opts.Password,
				},
				Ports:   []string{fmt.Sprintf("%d:5432", opts.Port)},
				Volumes: []string{mount},
				Healthcheck: &composeHealth{
					Test:     []string{"CMD-SHELL", fmt.Sprintf("pg_isready -U %s -d %s", opts.User, opts.Database)},
					Interval: "5s",
					Timeout:  "3s",
					Retries:  10,
				},
			},
		},
	}
	if named {
		f.Volumes = map[string]*struct{}{"dbdata": nil}
	}
	return f
}

func mysqlCompose(opts ComposeOptions) *composeFile {
	mount, named := dataVolume(opts, "/var/lib/mysql")
	f := &composeFile{
		Services: map[string]*composeService{
			"mysql": {
				Image: "mysql:8.0",
				Environment: map[string]string{
					"MYSQL_DATABASE":      opts.Database,
					"MYSQL_USER":          opts.User,
					"MYSQL_PASSWORD":      opts.Password,
					"MYSQL_ROOT_PASSWORD": opts.Password,
				},
				Ports:   []string{fmt.Sprintf("%d:3306", opts.Port)},
				Volumes: []string{mount},
				Healthcheck: &composeHealth{
					Test:     []string{"CMD", "mysqladmin", "ping", "-h", "localhost"},
					Interval: "5s",
					Timeout:  "3s",
					Retries:  10,
				},
			},
		},
	}
	if named {
		f.Volumes = map[string]*struct{}{"dbdata": nil}
	}
	return f
}

// dorisCompose renders the distributed OLAP engine stack: one frontend and
// one backend. The backend replica count is pinned to 1; the dev bring-up
// does not support multi-node clusters.
func dorisCompose(opts ComposeOptions) *composeFile {
	femount, named := dataVolume(opts, "/opt/apache-doris/fe/doris-meta")
	f := &composeFile{
		Services: map[string]*composeService{
			"doris-fe": {
				Image: "apache/doris:fe-2.1.7",
				Environment: map[string]string{
					"FE_SERVERS": "fe1:127.0.0.1:9010",
					"FE_ID":      "1",
				},
				Ports: []string{
					fmt.Sprintf("%d:9030", opts.Port),
					"8030:8030",
				},
				Volumes: []string{femount},
				Deploy:  &composeDeploy{Replicas: 1},
				Healthcheck: &composeHealth{
					Test:     []string{"CMD-SHELL", "curl -sf http://localhost:8030/api/bootstrap"},
					Interval: "10s",
					Timeout:  "5s",
					Retries:  30,
				},
			},
			"doris-be": {
				Image: "apache/doris:be-2.1.7",
				Environment: map[string]string{
					"FE_SERVERS": "fe1:127.0.0.1:9010",
					"BE_ADDR":    "127.0.0.1:9050",
				},
				DependsOn: []string{"doris-fe"},
				Deploy:    &composeDeploy{Replicas: 1},
				Ulimits:   map[string]int{"nofile": 655350},
			},
		},
	}
	if named {
		f.Volumes = map[string]*struct{}{"dbdata": nil}
	}
	return f
}
