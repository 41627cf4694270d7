package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/apperrors"
)

// DefaultPasswordEnv is read when a database does not name its own password variable.
const DefaultPasswordEnv = "GAIANDB_PASSWORD"

// Node kinds accepted in the nodes list.
const (
	NodeKindIn  = "in"
	NodeKindOut = "out"
	NodeKindSQL = "sql"
)

// Config holds all configuration for ekaya-gaiandb.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	LogLevel           string   `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:","`

	// Redis carries node input and output channels. Empty host disables the bus.
	Redis RedisConfig `yaml:"redis"`

	// Databases are the database config nodes; each owns one pool.
	Databases []DatabaseConfig `yaml:"databases"`

	// Nodes may be declared inline or in FlowsFile; both lists are merged.
	Nodes     []NodeConfig `yaml:"nodes"`
	FlowsFile string       `yaml:"flows_file" env:"FLOWS_FILE" env-default:""`

	// SQLIGuard rejects messages whose filter or projection looks like SQL injection.
	SQLIGuard bool `yaml:"sqli_guard" env:"SQLI_GUARD" env-default:"false"`
}

// RedisConfig holds the message bus connection settings.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
}

// DatabaseConfig describes one database config node.
type DatabaseConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Database    string `yaml:"database"`
	User        string `yaml:"user"`
	Password    string `yaml:"-"` // Resolved from PasswordEnv
	PasswordEnv string `yaml:"password_env"`
	SSL         string `yaml:"ssl"`
	MinPoolSize int32  `yaml:"min_pool_size"`
	MaxPoolSize int32  `yaml:"max_pool_size"`

	// Catalog statements. Empty uses the Gaian defaults.
	LogicalTablesSQL  string `yaml:"logical_tables_sql"`
	PhysicalTablesSQL string `yaml:"physical_tables_sql"`
}

// NodeConfig describes one flow node.
type NodeConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Database  string `yaml:"database"`
	Table     string `yaml:"table"`
	Operation string `yaml:"operation"`
	Multi     string `yaml:"multi"`
	Query     string `yaml:"query"`
	Input     string `yaml:"input"`
	Output    string `yaml:"output"`
}

// flowsFile is the shape of the file named by flows_file.
type flowsFile struct {
	Nodes []NodeConfig `yaml:"nodes"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile reads configuration from path with environment variable overrides.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if cfg.FlowsFile != "" {
		nodes, err := LoadFlows(cfg.FlowsFile)
		if err != nil {
			return nil, err
		}
		cfg.Nodes = append(cfg.Nodes, nodes...)
	}

	cfg.applyDefaults()

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flow configuration: %w", err)
	}

	return cfg, nil
}

// LoadFlows parses a flows file holding a top-level nodes list.
func LoadFlows(path string) ([]NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flows file: %w", err)
	}

	var f flowsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse flows file %s: %w", path, err)
	}
	return f.Nodes, nil
}

// applyDefaults fills list entries; cleanenv does not descend into slices.
func (c *Config) applyDefaults() {
	for i := range c.Databases {
		db := &c.Databases[i]
		if db.Type == "" {
			db.Type = "postgres"
		}
		if db.SSL == "" {
			db.SSL = datasource.SSLNone
		}
		if db.PasswordEnv == "" {
			db.PasswordEnv = DefaultPasswordEnv
		}
		db.Password = os.Getenv(db.PasswordEnv)
	}

	for i := range c.Nodes {
		n := &c.Nodes[i]
		n.Kind = strings.ToLower(strings.TrimSpace(n.Kind))
		if n.Kind == NodeKindIn && n.Operation == "" {
			n.Operation = "select"
		}
	}
}

// Validate checks identifiers, adapter types and references across databases
// and nodes. Every error wraps apperrors.ErrInvalidNode.
func (c *Config) Validate() error {
	ids := make(map[string]string)
	databases := make(map[string]bool, len(c.Databases))

	for _, db := range c.Databases {
		if db.ID == "" {
			return fmt.Errorf("database %q has no id: %w", db.Name, apperrors.ErrInvalidNode)
		}
		if prev, ok := ids[db.ID]; ok {
			return fmt.Errorf("duplicate id %q (already used by a %s): %w", db.ID, prev, apperrors.ErrInvalidNode)
		}
		ids[db.ID] = "database"
		databases[db.ID] = true

		if !datasource.IsRegistered(db.Type) {
			return fmt.Errorf("database %q: unknown type %q (registered: %s): %w",
				db.ID, db.Type, strings.Join(registeredTypes(), ", "), apperrors.ErrInvalidNode)
		}

		switch db.SSL {
		case datasource.SSLNone, datasource.SSLBasic, datasource.SSLPeer:
		default:
			return fmt.Errorf("database %q: unknown ssl mode %q: %w", db.ID, db.SSL, apperrors.ErrInvalidNode)
		}
	}

	for _, n := range c.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node %q has no id: %w", n.Name, apperrors.ErrInvalidNode)
		}
		if prev, ok := ids[n.ID]; ok {
			return fmt.Errorf("duplicate id %q (already used by a %s): %w", n.ID, prev, apperrors.ErrInvalidNode)
		}
		ids[n.ID] = "node"

		switch n.Kind {
		case NodeKindIn, NodeKindOut, NodeKindSQL:
		default:
			return fmt.Errorf("node %q: unknown kind %q: %w", n.ID, n.Kind, apperrors.ErrInvalidNode)
		}

		if n.Database != "" && !databases[n.Database] {
			return fmt.Errorf("node %q references unknown database %q: %w", n.ID, n.Database, apperrors.ErrInvalidNode)
		}
	}

	return nil
}

func registeredTypes() []string {
	adapters := datasource.RegisteredAdapters()
	types := make([]string, 0, len(adapters))
	for _, a := range adapters {
		types = append(types, a.Type)
	}
	return types
}

// ConnectionConfig converts the database config node into adapter settings.
func (d DatabaseConfig) ConnectionConfig() datasource.ConnectionConfig {
	return datasource.ConnectionConfig{
		Type:        d.Type,
		Host:        d.Host,
		Port:        d.Port,
		Database:    d.Database,
		User:        d.User,
		Password:    d.Password,
		SSL:         d.SSL,
		MinPoolSize: d.MinPoolSize,
		MaxPoolSize: d.MaxPoolSize,
	}
}

// Address returns host:port for logging. An unset port is shown as the
// adapter's default.
func (d DatabaseConfig) Address() string {
	port := d.Port
	if port == 0 {
		if info, ok := datasource.GetAdapterInfo(d.Type); ok {
			port = info.DefaultPort
		}
	}
	if port == 0 {
		return d.Host
	}
	return fmt.Sprintf("%s:%d", d.Host, port)
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist and be readable.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	// Readability is checked by tls.LoadX509KeyPair at startup
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
