// Package mysql discovers schema objects from MySQL. Table and column
// comments become logical names; view definitions are parsed to find the
// tables a view reads from.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/adapters/schemasource"
	"github.com/ekaya-inc/schema-graph/pkg/config"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// Config contains MySQL connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// FromMap creates a Config from a generic config map.
func FromMap(m map[string]any) (*Config, error) {
	cfg := &Config{
		Port:     schemasource.IntOption(m, "port", 3306),
		Password: schemasource.StringOption(m, "password", ""),
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

// DSN formats the driver connection string.
func (c *Config) DSN() string {
	dc := mysql.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(config.ResolveHostForDocker(c.Host), strconv.Itoa(c.Port))
	dc.DBName = c.Database
	return dc.FormatDSN()
}

// Source reads one MySQL database.
type Source struct {
	db       *sql.DB
	database string
	logger   *zap.Logger
}

// NewSource opens and pings the database described by cfg.
func NewSource(ctx context.Context, cfg *Config, logger *zap.Logger) (*Source, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open MySQL connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	return &Source{db: db, database: cfg.Database, logger: logger.Named("schemasource-mysql")}, nil
}

func init() {
	schemasource.Register(schemasource.Registration{
		Info: schemasource.SourceInfo{
			Type:        "mysql",
			DisplayName: "MySQL",
			Description: "Tables, views and comments from a MySQL database",
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

func tableKind(tableType string) models.ObjectKind {
	if tableType == "VIEW" || tableType == "SYSTEM VIEW" {
		return models.KindView
	}
	return models.KindTable
}

func (s *Source) Discover(ctx context.Context) ([]models.SchemaDescriptor, error) {
	catalog := schemasource.NewCatalog()

	rows, err := s.db.QueryContext(ctx, `
		SELECT TABLE_NAME, TABLE_TYPE, COALESCE(TABLE_COMMENT, '')
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME`, s.database)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	for rows.Next() {
		var name, tableType, comment string
		if err := rows.Scan(&name, &tableType, &comment); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan table: %w", err)
		}
		kind := tableKind(tableType)
		if kind == models.KindView && comment == "VIEW" {
			comment = ""
		}
		catalog.AddObject(kind, name, comment)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT c.TABLE_NAME, t.TABLE_TYPE, c.COLUMN_NAME, COALESCE(c.COLUMN_COMMENT, '')
		FROM information_schema.COLUMNS c
		JOIN information_schema.TABLES t
		  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
		WHERE c.TABLE_SCHEMA = ?
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`, s.database)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	for rows.Next() {
		var owner, tableType, column, comment string
		if err := rows.Scan(&owner, &tableType, &column, &comment); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan column: %w", err)
		}
		catalog.AddColumn(tableKind(tableType), owner, column, comment)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT TABLE_NAME, VIEW_DEFINITION
		FROM information_schema.VIEWS
		WHERE TABLE_SCHEMA = ?`, s.database)
	if err != nil {
		return nil, fmt.Errorf("query views: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var view, definition string
		if err := rows.Scan(&view, &definition); err != nil {
			return nil, fmt.Errorf("scan view: %w", err)
		}
		tables, err := schemasource.ReferencedTables(definition, false)
		if err != nil {
			s.logger.Warn("Skipping dependencies of unparsable view", zap.String("view", view), zap.Error(err))
			continue
		}
		for _, t := range tables {
			catalog.AddDependency(view, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	descriptors := catalog.Descriptors()
	s.logger.Info("Discovered schema", zap.String("database", s.database), zap.Int("objects", len(descriptors)))
	return descriptors, nil
}

func (s *Source) Close() error {
	return s.db.Close()
}

var _ schemasource.Discoverer = (*Source)(nil)
