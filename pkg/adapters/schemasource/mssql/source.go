// Package mssql discovers schema objects from SQL Server. MS_Description
// extended properties become logical names.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/adapters/schemasource"
	"github.com/ekaya-inc/schema-graph/pkg/config"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// Config contains SQL Server connection options.
type Config struct {
	Host     string
	Port     int
	Database string
	Schema   string

	// AuthMethod is "sql" or "service_principal".
	AuthMethod string

	Username string
	Password string

	TenantID     string
	ClientID     string
	ClientSecret string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// FromMap creates a Config from a generic config map. The auth method is
// detected from the credentials when not given.
func FromMap(m map[string]any) (*Config, error) {
	cfg := &Config{
		Port:                   schemasource.IntOption(m, "port", 1433),
		Schema:                 schemasource.StringOption(m, "schema", "dbo"),
		Encrypt:                schemasource.BoolOption(m, "encrypt", true),
		TrustServerCertificate: schemasource.BoolOption(m, "trust_server_certificate", false),
		ConnectionTimeout:      schemasource.IntOption(m, "connection_timeout", 30),
	}
	var err error
	if cfg.Host, err = schemasource.RequiredString(m, "host"); err != nil {
		return nil, err
	}
	if cfg.Database, err = schemasource.RequiredString(m, "database"); err != nil {
		return nil, err
	}

	cfg.AuthMethod = schemasource.StringOption(m, "auth_method", "")
	if cfg.AuthMethod == "" {
		if _, ok := m["client_id"].(string); ok {
			cfg.AuthMethod = "service_principal"
		} else {
			cfg.AuthMethod = "sql"
		}
	}

	switch cfg.AuthMethod {
	case "sql":
		cfg.Username = schemasource.StringOption(m, "username", schemasource.StringOption(m, "user", ""))
		if cfg.Username == "" {
			return nil, fmt.Errorf("username is required for SQL authentication")
		}
		cfg.Password = schemasource.StringOption(m, "password", "")
	case "service_principal":
		for key, dst := range map[string]*string{
			"tenant_id":     &cfg.TenantID,
			"client_id":     &cfg.ClientID,
			"client_secret": &cfg.ClientSecret,
		} {
			v, err := schemasource.RequiredString(m, key)
			if err != nil {
				return nil, fmt.Errorf("%w for service principal authentication", err)
			}
			*dst = v
		}
	default:
		return nil, fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", cfg.AuthMethod)
	}

	return cfg, nil
}

// driverAndDSN returns the driver name and connection URL for the config.
func (c *Config) driverAndDSN() (string, string) {
	query := url.Values{}
	query.Add("database", c.Database)
	if c.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", c.ConnectionTimeout))
	}

	if c.AuthMethod == "service_principal" {
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", c.ClientID)
		query.Add("password", c.ClientSecret)
		query.Add("tenant id", c.TenantID)
		return "azuresql", fmt.Sprintf("sqlserver://%s:%d?%s", config.ResolveHostForDocker(c.Host), c.Port, query.Encode())
	}

	return "sqlserver", fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(c.Username),
		url.QueryEscape(c.Password),
		config.ResolveHostForDocker(c.Host),
		c.Port,
		query.Encode(),
	)
}

// Source reads one schema of a SQL Server database.
type Source struct {
	db     *sql.DB
	schema string
	logger *zap.Logger
}

// NewSource opens and pings the database described by cfg.
func NewSource(ctx context.Context, cfg *Config, logger *zap.Logger) (*Source, error) {
	driver, dsn := cfg.driverAndDSN()
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open SQL Server connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	return &Source{db: db, schema: cfg.Schema, logger: logger.Named("schemasource-mssql")}, nil
}

func init() {
	schemasource.Register(schemasource.Registration{
		Info: schemasource.SourceInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "Tables, views and MS_Description properties from SQL Server or Azure SQL",
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
	if tableType == "VIEW" {
		return models.KindView
	}
	return models.KindTable
}

func (s *Source) Discover(ctx context.Context) ([]models.SchemaDescriptor, error) {
	catalog := schemasource.NewCatalog()

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.TABLE_NAME, t.TABLE_TYPE, CAST(COALESCE(ep.value, '') AS NVARCHAR(4000))
		FROM INFORMATION_SCHEMA.TABLES t
		LEFT JOIN sys.extended_properties ep
		  ON ep.major_id = OBJECT_ID(QUOTENAME(t.TABLE_SCHEMA) + '.' + QUOTENAME(t.TABLE_NAME))
		 AND ep.minor_id = 0
		 AND ep.name = 'MS_Description'
		WHERE t.TABLE_SCHEMA = @schema
		ORDER BY t.TABLE_NAME`, sql.Named("schema", s.schema))
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	for rows.Next() {
		var name, tableType, description string
		if err := rows.Scan(&name, &tableType, &description); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan table: %w", err)
		}
		catalog.AddObject(tableKind(tableType), name, description)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT c.TABLE_NAME, t.TABLE_TYPE, c.COLUMN_NAME, CAST(COALESCE(ep.value, '') AS NVARCHAR(4000))
		FROM INFORMATION_SCHEMA.COLUMNS c
		JOIN INFORMATION_SCHEMA.TABLES t
		  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
		LEFT JOIN sys.extended_properties ep
		  ON ep.major_id = OBJECT_ID(QUOTENAME(c.TABLE_SCHEMA) + '.' + QUOTENAME(c.TABLE_NAME))
		 AND ep.minor_id = COLUMNPROPERTY(ep.major_id, c.COLUMN_NAME, 'ColumnId')
		 AND ep.name = 'MS_Description'
		WHERE c.TABLE_SCHEMA = @schema
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`, sql.Named("schema", s.schema))
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	for rows.Next() {
		var owner, tableType, column, description string
		if err := rows.Scan(&owner, &tableType, &column, &description); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan column: %w", err)
		}
		catalog.AddColumn(tableKind(tableType), owner, column, description)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT VIEW_NAME, TABLE_NAME
		FROM INFORMATION_SCHEMA.VIEW_TABLE_USAGE
		WHERE VIEW_SCHEMA = @schema AND TABLE_SCHEMA = @schema`, sql.Named("schema", s.schema))
	if err != nil {
		return nil, fmt.Errorf("query view dependencies: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var view, table string
		if err := rows.Scan(&view, &table); err != nil {
			return nil, fmt.Errorf("scan view dependency: %w", err)
		}
		catalog.AddDependency(view, table)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	descriptors := catalog.Descriptors()
	s.logger.Info("Discovered schema", zap.String("schema", s.schema), zap.Int("objects", len(descriptors)))
	return descriptors, nil
}

func (s *Source) Close() error {
	return s.db.Close()
}

var _ schemasource.Discoverer = (*Source)(nil)
