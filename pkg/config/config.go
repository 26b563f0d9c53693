package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the schema-graph service.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr       string        `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port           string        `yaml:"port" env:"PORT" env-default:"3443"`
	Env            string        `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL        string        `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"120s"`
	Version        string        `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Graph    GraphConfig    `yaml:"graph"`
	LLM      LLMConfig      `yaml:"llm"`
	Chat     ChatConfig     `yaml:"chat"`
	Export   ExportConfig   `yaml:"export"`
	Usage    UsageConfig    `yaml:"usage"`
	MCP      MCPConfig      `yaml:"mcp"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT signatures are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	// JWTSecret enables HS256 validation when no JWKS endpoint is configured.
	JWTSecret string `yaml:"-" env:"JWT_SECRET"` // Secret - not in YAML

	// SessionTTL is how long a session stays in the cache without activity.
	SessionTTL time.Duration `yaml:"session_ttl" env:"SESSION_TTL" env-default:"3600s"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"schemagraph"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"schema_graph"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds the session cache connection.
// An empty Host selects the in-memory session store.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Addr returns host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled reports whether a Redis server is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Graph store backends.
const (
	GraphBackendPostgres = "postgres"
	GraphBackendNeo4j    = "neo4j"
	GraphBackendMemory   = "memory"
)

// GraphConfig selects and configures the schema graph store.
type GraphConfig struct {
	Backend       string `yaml:"backend" env:"GRAPH_BACKEND" env-default:"postgres"`
	Neo4jURI      string `yaml:"neo4j_uri" env:"NEO4J_URI" env-default:"neo4j://localhost:7687"`
	Neo4jUser     string `yaml:"neo4j_user" env:"NEO4J_USER" env-default:"neo4j"`
	Neo4jPassword string `yaml:"-" env:"NEO4J_PASSWORD"` // Secret - not in YAML
	Neo4jDatabase string `yaml:"neo4j_database" env:"NEO4J_DATABASE" env-default:"neo4j"`
	// QueryTimeout bounds every call to the store.
	QueryTimeout time.Duration `yaml:"query_timeout" env:"GRAPH_QUERY_TIMEOUT" env-default:"10s"`
}

// LLMConfig configures the model providers. Provider is chosen once at startup.
type LLMConfig struct {
	Provider         string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	FallbackProvider string `yaml:"fallback_provider" env:"LLM_FALLBACK_PROVIDER" env-default:""`

	OpenAIModel   string `yaml:"openai_model" env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`
	OpenAIBaseURL string `yaml:"openai_base_url" env:"OPENAI_BASE_URL" env-default:""`
	OpenAIAPIKey  string `yaml:"-" env:"OPENAI_API_KEY"` // Secret - not in YAML

	AzureEndpoint   string `yaml:"azure_endpoint" env:"AZURE_OPENAI_ENDPOINT" env-default:""`
	AzureDeployment string `yaml:"azure_deployment" env:"AZURE_OPENAI_DEPLOYMENT" env-default:"gpt-4o"`
	AzureAPIVersion string `yaml:"azure_api_version" env:"AZURE_OPENAI_API_VERSION" env-default:"2024-06-01"`
	AzureAPIKey     string `yaml:"-" env:"AZURE_OPENAI_API_KEY"` // Secret - not in YAML

	AnthropicModel   string `yaml:"anthropic_model" env:"ANTHROPIC_MODEL" env-default:"claude-3-5-haiku-latest"`
	AnthropicBaseURL string `yaml:"anthropic_base_url" env:"ANTHROPIC_BASE_URL" env-default:""`
	AnthropicAPIKey  string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML

	Timeout     time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"60s"`
	MaxTokens   int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1024"`
	Temperature float32       `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`

	MaxRetries        int           `yaml:"max_retries" env:"LLM_MAX_RETRIES" env-default:"2"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay" env:"LLM_RETRY_INITIAL_DELAY" env-default:"500ms"`

	BreakerThreshold int           `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" env:"LLM_BREAKER_COOLDOWN" env-default:"30s"`
}

// ChatConfig bounds the resolution context handed to the answer prompt.
type ChatConfig struct {
	MaxContextEntities int  `yaml:"max_context_entities" env:"CHAT_MAX_CONTEXT_ENTITIES" env-default:"50"`
	MaxContextBytes    int  `yaml:"max_context_bytes" env:"CHAT_MAX_CONTEXT_BYTES" env-default:"16384"`
	LookupConcurrency  int  `yaml:"lookup_concurrency" env:"CHAT_LOOKUP_CONCURRENCY" env-default:"4"`
	InflectionFallback bool `yaml:"inflection_fallback" env:"CHAT_INFLECTION_FALLBACK" env-default:"false"`
}

// ExportConfig controls where and how artifacts are written.
type ExportConfig struct {
	OutputDir       string        `yaml:"output_dir" env:"EXPORT_OUTPUT_DIR" env-default:"./exports"`
	TabularFileName string        `yaml:"tabular_file_name" env:"EXPORT_TABULAR_FILE" env-default:"database_relationships.xlsx"`
	DiagramFileName string        `yaml:"diagram_file_name" env:"EXPORT_DIAGRAM_FILE" env-default:"database_relationships.pptx"`
	MermaidFileName string        `yaml:"mermaid_file_name" env:"EXPORT_MERMAID_FILE" env-default:"database_relationships.mmd"`
	MaxConcurrent   int           `yaml:"max_concurrent" env:"EXPORT_MAX_CONCURRENT" env-default:"2"`
	Timeout         time.Duration `yaml:"timeout" env:"EXPORT_TIMEOUT" env-default:"5m"`
}

// UsageConfig controls persistence of the token usage log.
type UsageConfig struct {
	Persist   bool `yaml:"persist" env:"USAGE_PERSIST" env-default:"true"`
	QueueSize int  `yaml:"queue_size" env:"USAGE_QUEUE_SIZE" env-default:"256"`
}

// MCPConfig toggles the MCP endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// A .env file in the working directory, if present, is loaded into the
// environment first. A missing config.yaml falls back to environment only.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// Validate checks enumerated values and bounds.
func (c *Config) Validate() error {
	switch c.Graph.Backend {
	case GraphBackendPostgres, GraphBackendNeo4j, GraphBackendMemory:
	default:
		return fmt.Errorf("invalid graph backend %q", c.Graph.Backend)
	}
	if !isProviderName(c.LLM.Provider) {
		return fmt.Errorf("invalid llm provider %q", c.LLM.Provider)
	}
	if c.LLM.FallbackProvider != "" {
		if !isProviderName(c.LLM.FallbackProvider) {
			return fmt.Errorf("invalid llm fallback provider %q", c.LLM.FallbackProvider)
		}
		if c.LLM.FallbackProvider == c.LLM.Provider {
			return fmt.Errorf("llm fallback provider must differ from provider")
		}
	}
	if c.Chat.MaxContextEntities <= 0 || c.Chat.MaxContextBytes <= 0 {
		return fmt.Errorf("chat context bounds must be positive")
	}
	if c.Export.MaxConcurrent <= 0 {
		return fmt.Errorf("export max_concurrent must be positive")
	}
	return nil
}

func isProviderName(name string) bool {
	switch name {
	case "openai", "azure", "anthropic":
		return true
	}
	return false
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
