package probe

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cubeops/cubeops/internal/resource"
)

// SchemaProbe checks that a database accepts connections and contains the
// expected seed tables. Doris speaks the MySQL wire protocol, so the mysql
// driver covers both mysql and doris instances.
type SchemaProbe struct {
	PingTimeout time.Duration

	// openDB overrides database opening in tests.
	openDB func(driver, dsn string) (*sql.DB, error)
}

func (p *SchemaProbe) Probe(ctx context.Context, res *resource.Resource) (resource.ObservedState, error) {
	spec := res.Schema
	if spec == nil {
		return resource.ObservedState{}, fmt.Errorf("resource %s has no schema spec", res.Address())
	}

	open := p.openDB
	if open == nil {
		open = sql.Open
	}
	db, err := open(spec.Driver, spec.DSN)
	if err != nil {
		return resource.ObservedState{}, fmt.Errorf("opening %s connection: %w", spec.Driver, err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, p.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return resource.AbsentState(), nil
	}

	found, err := listTables(ctx, db, spec)
	if err != nil {
		return resource.ObservedState{}, fmt.Errorf("listing tables in %s: %w", spec.DBName, err)
	}

	var missing []string
	for _, want := range spec.Tables {
		if !found[strings.ToLower(want)] {
			missing = append(missing, want)
		}
	}
	switch {
	case len(missing) == 0:
		return resource.HealthyState(), nil
	case len(missing) == len(spec.Tables):
		return resource.AbsentState(), nil
	default:
		return resource.DegradedState("missing tables: " + strings.Join(missing, ", ")), nil
	}
}

func listTables(ctx context.Context, db *sql.DB, spec *resource.SchemaSpec) (map[string]bool, error) {
	var query string
	switch spec.Driver {
	case "pgx":
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_catalog = $1`
	default: // mysql wire protocol (mysql, doris)
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = ?`
	}

	rows, err := db.QueryContext(ctx, query, spec.DBName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		found[strings.ToLower(name)] = true
	}
	return found, rows.Err()
}
