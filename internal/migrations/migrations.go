// Package migrations holds the embedded schema and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var schema embed.FS

// Result reports the schema version before and after a run.
type Result struct {
	From int64
	To   int64
}

// Applied reports whether the run changed the schema.
func (r Result) Applied() bool { return r.To != r.From }

// Run brings db up to the latest embedded schema version.
func Run(ctx context.Context, db *sql.DB) (Result, error) {
	goose.SetBaseFS(schema)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return Result{}, fmt.Errorf("setting dialect: %w", err)
	}

	var res Result
	var err error
	if res.From, err = goose.GetDBVersionContext(ctx, db); err != nil {
		return res, fmt.Errorf("reading schema version: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return res, fmt.Errorf("applying migrations: %w", err)
	}
	if res.To, err = goose.GetDBVersionContext(ctx, db); err != nil {
		return res, fmt.Errorf("reading schema version: %w", err)
	}
	return res, nil
}
