// Package sqlite discovers schema objects from a SQLite database file.
// View SQL is parsed to find the tables each view reads from.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/adapters/schemasource"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// Config locates the database file.
type Config struct {
	Path string
}

// FromMap creates a Config from a generic config map.
func FromMap(m map[string]any) (*Config, error) {
	path, err := schemasource.RequiredString(m, "path")
	if err != nil {
		return nil, err
	}
	return &Config{Path: path}, nil
}

// Source reads a SQLite database opened read-only.
type Source struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSource opens the file at cfg.Path read-only.
func NewSource(ctx context.Context, cfg *Config, logger *zap.Logger) (*Source, error) {
	db, err := sql.Open("sqlite3", "file:"+cfg.Path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	return &Source{db: db, logger: logger.Named("schemasource-sqlite")}, nil
}

func init() {
	schemasource.Register(schemasource.Registration{
		Info: schemasource.SourceInfo{
			Type:        "sqlite",
			DisplayName: "SQLite",
			Description: "Tables and views from a SQLite database file",
		},
		Factory: func(ctx context.Context, m map[string]any, logger *zap.Logger) (schemasource.Discoverer, error) {
			cfg, err := FromMap(m)
			if err != nil {
				return nil, err
			}
			return NewSource(ctx, cfg, logger)
		},
	})
}

// viewBody captures the SELECT of a CREATE VIEW statement, which may use
// SQLite-only clauses such as IF NOT EXISTS or TEMP.
var viewBody = regexp.MustCompile(`(?is)^\s*CREATE\s+(?:TEMP\s+|TEMPORARY\s+)?VIEW\s+.*?\s+AS\s+(.*)$`)

// ViewSelect returns the query part of a CREATE VIEW statement, or the
// input unchanged when it does not match.
func ViewSelect(createSQL string) string {
	if m := viewBody.FindStringSubmatch(createSQL); m != nil {
		return m[1]
	}
	return createSQL
}

type object struct {
	name, kind, sql string
}

func (s *Source) Discover(ctx context.Context) ([]models.SchemaDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, type, COALESCE(sql, '')
		FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query sqlite_master: %w", err)
	}
	var objects []object
	for rows.Next() {
		var o object
		if err := rows.Scan(&o.name, &o.kind, &o.sql); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan object: %w", err)
		}
		objects = append(objects, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	catalog := schemasource.NewCatalog()
	for _, o := range objects {
		kind := models.KindTable
		if o.kind == "view" {
			kind = models.KindView
		}
		catalog.AddObject(kind, o.name, "")

		if err := s.addColumns(ctx, catalog, kind, o.name); err != nil {
			return nil, err
		}

		if kind != models.KindView {
			continue
		}
		tables, err := schemasource.ReferencedTables(ViewSelect(o.sql), true)
		if err != nil {
			s.logger.Warn("Skipping dependencies of unparsable view", zap.String("view", o.name), zap.Error(err))
			continue
		}
		for _, t := range tables {
			catalog.AddDependency(o.name, t)
		}
	}

	descriptors := catalog.Descriptors()
	s.logger.Info("Discovered schema", zap.Int("objects", len(descriptors)))
	return descriptors, nil
}

func (s *Source) addColumns(ctx context.Context, catalog *schemasource.Catalog, kind models.ObjectKind, owner string) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?) ORDER BY cid`, owner)
	if err != nil {
		return fmt.Errorf("query columns of %s: %w", owner, err)
	}
	defer rows.Close()

	for rows.Next() {
		var column string
		if err := rows.Scan(&column); err != nil {
			return fmt.Errorf("scan column: %w", err)
		}
		catalog.AddColumn(kind, owner, column, "")
	}
	return rows.Err()
}

func (s *Source) Close() error {
	return s.db.Close()
}

var _ schemasource.Discoverer = (*Source)(nil)
