// Package database is an in-process reference plugin backing a "tables"
// resource and run_query/drop_table actions over a pgxpool.Pool, grounded
// on spec §4.7's preview-dispatch note: run_query's propose phase runs an
// EXPLAIN-only, side-effect-free preview of the same statement.
package database

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"clawgate/internal/apierr"
	"clawgate/internal/manifest"
	"clawgate/internal/pluginapi"
)

//go:embed manifest.yaml
var manifestYAML []byte

// Manifest parses and validates the plugin's embedded descriptor.
func Manifest() (*manifest.Manifest, error) {
	return manifest.Load(manifestYAML)
}

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// pool is the narrow slice of *pgxpool.Pool the plugin needs; satisfied by
// *pgxpool.Pool itself.
type pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Plugin is the database reference implementation of pluginapi.Plugin.
type Plugin struct {
	pool pool
}

// New wraps an already-connected pgxpool.Pool.
func New(p *pgxpool.Pool) *Plugin {
	return &Plugin{pool: p}
}

func validateIdentifier(name string) error {
	if !identPattern.MatchString(name) {
		return apierr.New(apierr.KindValidation, "invalid table identifier %q", name)
	}
	return nil
}

// ListResource lists user tables from the connected database's catalog.
func (p *Plugin) ListResource(ctx context.Context, resource string, q pluginapi.ReadQuery) (pluginapi.ReadResult, error) {
	if resource != "tables" {
		return pluginapi.ReadResult{}, apierr.New(apierr.KindNotFound, "database: unknown resource %q", resource)
	}

	rows, err := p.pool.Query(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`)
	if err != nil {
		return pluginapi.ReadResult{}, apierr.Wrap(apierr.KindValidation, err)
	}
	defer rows.Close()

	var items []any
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return pluginapi.ReadResult{}, apierr.Wrap(apierr.KindValidation, err)
		}
		items = append(items, map[string]any{"name": name})
	}
	if err := rows.Err(); err != nil {
		return pluginapi.ReadResult{}, apierr.Wrap(apierr.KindValidation, err)
	}

	return pluginapi.ReadResult{Data: items}, nil
}

// GetResource returns the row count for one table.
func (p *Plugin) GetResource(ctx context.Context, resource, resourceID string, q pluginapi.ReadQuery) (pluginapi.ReadResult, error) {
	if resource != "tables" {
		return pluginapi.ReadResult{}, apierr.New(apierr.KindNotFound, "database: unknown resource %q", resource)
	}
	if err := validateIdentifier(resourceID); err != nil {
		return pluginapi.ReadResult{}, err
	}

	rows, err := p.pool.Query(ctx, fmt.Sprintf("SELECT count(*) FROM %s", resourceID))
	if err != nil {
		return pluginapi.ReadResult{}, apierr.New(apierr.KindNotFound, "database: table %q not found: %v", resourceID, err)
	}
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return pluginapi.ReadResult{}, apierr.Wrap(apierr.KindValidation, err)
		}
	}

	return pluginapi.ReadResult{Data: map[string]any{"name": resourceID, "row_count": count}}, nil
}

// RunAction dispatches run_query and drop_table.
func (p *Plugin) RunAction(ctx context.Context, req pluginapi.ActionRequest) (pluginapi.ActionResult, error) {
	switch req.Action {
	case "run_query":
		return p.runQuery(ctx, req)
	case "drop_table":
		return p.dropTable(ctx, req)
	default:
		return pluginapi.ActionResult{}, apierr.New(apierr.KindNotFound, "database: unknown action %q", req.Action)
	}
}

func (p *Plugin) runQuery(ctx context.Context, req pluginapi.ActionRequest) (pluginapi.ActionResult, error) {
	sql, _ := req.Args["sql"].(string)
	if sql == "" {
		return pluginapi.ActionResult{}, apierr.New(apierr.KindValidation, "run_query requires a non-empty sql argument")
	}

	if req.Phase == "propose" {
		rows, err := p.pool.Query(ctx, "EXPLAIN "+sql)
		if err != nil {
			return pluginapi.ActionResult{}, apierr.Wrap(apierr.KindValidation, err)
		}
		defer rows.Close()

		var plan []any
		for rows.Next() {
			var line string
			if err := rows.Scan(&line); err == nil {
				plan = append(plan, line)
			}
		}
		return pluginapi.ActionResult{
			Summary:        "run a SQL query",
			ProposedEffect: map[string]any{"sql": sql, "explain": plan},
			Result:         map[string]any{"explain": plan},
		}, nil
	}

	rows, err := p.pool.Query(ctx, sql)
	if err != nil {
		return pluginapi.ActionResult{}, apierr.Wrap(apierr.KindValidation, err)
	}
	defer rows.Close()

	results, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return pluginapi.ActionResult{}, apierr.Wrap(apierr.KindValidation, err)
	}
	items := make([]any, len(results))
	for i, r := range results {
		items[i] = r
	}

	return pluginapi.ActionResult{
		Status:  pluginapi.StatusSuccess,
		Summary: fmt.Sprintf("query returned %d row(s)", len(items)),
		Result:  map[string]any{"rows": items, "row_count": len(items)},
	}, nil
}

// dropTable has no propose phase; the mediator's own approval-preview call
// executes it, so it must be idempotent against a table already gone.
func (p *Plugin) dropTable(ctx context.Context, req pluginapi.ActionRequest) (pluginapi.ActionResult, error) {
	if err := validateIdentifier(req.ResourceID); err != nil {
		return pluginapi.ActionResult{}, err
	}

	_, err := p.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", req.ResourceID))
	if err != nil {
		return pluginapi.ActionResult{}, apierr.Wrap(apierr.KindValidation, err)
	}

	return pluginapi.ActionResult{
		Status:  pluginapi.StatusSuccess,
		Summary: fmt.Sprintf("drop table %s", req.ResourceID),
		Result:  map[string]any{"dropped": true, "table": req.ResourceID},
	}, nil
}
