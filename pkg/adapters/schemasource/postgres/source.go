// Package postgres discovers schema objects from a PostgreSQL database.
// Comments on relations and columns become logical names.
package postgres

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/adapters/schemasource"
	"github.com/ekaya-inc/schema-graph/pkg/config"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// Config contains PostgreSQL connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Schema   string
}

// FromMap creates a Config from a generic config map.
func FromMap(m map[string]any) (*Config, error) {
	cfg := &Config{
		Port:     schemasource.IntOption(m, "port", 5432),
		Password: schemasource.StringOption(m, "password", ""),
		SSLMode:  schemasource.StringOption(m, "ssl_mode", "require"),
		Schema:   schemasource.StringOption(m, "schema", "public"),
	}
	var err error
	if cfg.Host, err = schemasource.RequiredString(m, "host"); err != nil {
		return nil, err
	}
	if cfg.User, err = schemasource.RequiredString(m, "user"); err != nil {
		return nil, err
	}
	if cfg.Database, err = schemasource.RequiredString(m, "database"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConnectionString builds a postgresql:// URL for the config.
func (c *Config) ConnectionString() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		config.ResolveHostForDocker(c.Host),
		c.Port,
		url.QueryEscape(c.Database),
		c.SSLMode,
	)
}

// Source reads one schema of a PostgreSQL database.
type Source struct {
	pool   *pgxpool.Pool
	schema string
	logger *zap.Logger
}

// NewSource connects to the database described by cfg.
func NewSource(ctx context.Context, cfg *Config, logger *zap.Logger) (*Source, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return NewSourceWithPool(pool, cfg.Schema, logger), nil
}

// NewSourceWithPool wraps an existing pool. Close closes the pool.
func NewSourceWithPool(pool *pgxpool.Pool, schema string, logger *zap.Logger) *Source {
	return &Source{pool: pool, schema: schema, logger: logger.Named("schemasource-postgres")}
}

func init() {
	schemasource.Register(schemasource.Registration{
		Info: schemasource.SourceInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "Tables, views and comments from a PostgreSQL schema",
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

func (s *Source) Discover(ctx context.Context) ([]models.SchemaDescriptor, error) {
	catalog := schemasource.NewCatalog()

	if err := s.discoverObjects(ctx, catalog); err != nil {
		return nil, err
	}
	if err := s.discoverColumns(ctx, catalog); err != nil {
		return nil, err
	}
	if err := s.discoverViewDependencies(ctx, catalog); err != nil {
		return nil, err
	}

	descriptors := catalog.Descriptors()
	s.logger.Info("Discovered schema",
		zap.String("schema", s.schema),
		zap.Int("objects", len(descriptors)))
	return descriptors, nil
}

func relationKind(relkind string) models.ObjectKind {
	if relkind == "v" || relkind == "m" {
		return models.KindView
	}
	return models.KindTable
}

func (s *Source) discoverObjects(ctx context.Context, catalog *schemasource.Catalog) error {
	rows, err := s.pool.Query(ctx, `
		SELECT c.relname, c.relkind::text, COALESCE(obj_description(c.oid, 'pg_class'), '')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind IN ('r', 'p', 'v', 'm')
		ORDER BY c.relname`, s.schema)
	if err != nil {
		return fmt.Errorf("query relations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, relkind, comment string
		if err := rows.Scan(&name, &relkind, &comment); err != nil {
			return fmt.Errorf("scan relation: %w", err)
		}
		catalog.AddObject(relationKind(relkind), name, comment)
	}
	return rows.Err()
}

func (s *Source) discoverColumns(ctx context.Context, catalog *schemasource.Catalog) error {
	rows, err := s.pool.Query(ctx, `
		SELECT c.relname, c.relkind::text, a.attname, COALESCE(col_description(c.oid, a.attnum), '')
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relkind IN ('r', 'p', 'v', 'm')
		  AND a.attnum > 0
		  AND NOT a.attisdropped
		ORDER BY c.relname, a.attnum`, s.schema)
	if err != nil {
		return fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var owner, relkind, column, comment string
		if err := rows.Scan(&owner, &relkind, &column, &comment); err != nil {
			return fmt.Errorf("scan column: %w", err)
		}
		catalog.AddColumn(relationKind(relkind), owner, column, comment)
	}
	return rows.Err()
}

func (s *Source) discoverViewDependencies(ctx context.Context, catalog *schemasource.Catalog) error {
	rows, err := s.pool.Query(ctx, `
		SELECT view_name, table_name
		FROM information_schema.view_table_usage
		WHERE view_schema = $1 AND table_schema = $1
		ORDER BY view_name, table_name`, s.schema)
	if err != nil {
		return fmt.Errorf("query view dependencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var view, table string
		if err := rows.Scan(&view, &table); err != nil {
			return fmt.Errorf("scan view dependency: %w", err)
		}
		catalog.AddDependency(view, table)
	}
	return rows.Err()
}

func (s *Source) Close() error {
	s.pool.Close()
	return nil
}

var _ schemasource.Discoverer = (*Source)(nil)
