package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	AWS          AWSConfig          `yaml:"aws"`
	Registry     RegistryConfig     `yaml:"registry"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Executor     ExecutorConfig     `yaml:"executor"`
	Reconcile    ReconcileConfig    `yaml:"reconcile"`
	Restriction  RestrictionConfig  `yaml:"restriction"`
	Upstream     UpstreamConfig     `yaml:"upstream"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Journal      JournalConfig      `yaml:"journal"`
	CORS         CORSConfig         `yaml:"cors"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// AWSConfig represents AWS configuration
type AWSConfig struct {
	Region          string `yaml:"region"`
	Profile         string `yaml:"profile"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	// Endpoint overrides the service endpoint for all clients (localstack and similar).
	Endpoint string `yaml:"endpoint"`
}

// RegistryConfig describes where cluster records live in Parameter Store.
type RegistryConfig struct {
	Prefix          string `yaml:"prefix"`
	ExclusionMarker string `yaml:"exclusion_marker"`
}

// OrchestratorConfig tunes the EMR state client.
type OrchestratorConfig struct {
	DescribeMatched     bool `yaml:"describe_matched"`
	DescribeConcurrency int  `yaml:"describe_concurrency"`
}

// ExecutorConfig identifies the asynchronous command executor.
type ExecutorConfig struct {
	FunctionName string        `yaml:"function_name"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ReconcileConfig selects the name matching policy.
type ReconcileConfig struct {
	MatchPolicy string `yaml:"match_policy"` // first_match or exact_first
}

// RestrictionConfig enables the single-cluster deployment mode.
type RestrictionConfig struct {
	AllowedCluster string `yaml:"allowed_cluster"`
}

// UpstreamConfig decides how whole-fetch failures are rendered.
type UpstreamConfig struct {
	FailOnUnavailable bool `yaml:"fail_on_unavailable"`
}

// MetricsConfig represents metrics collection configuration
type MetricsConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Path               string        `yaml:"path"`
	CollectionInterval time.Duration `yaml:"collection_interval"`
}

// JournalConfig selects where dispatched operations are recorded.
type JournalConfig struct {
	Driver          string        `yaml:"driver"` // memory, postgres or none
	DSN             string        `yaml:"dsn"`
	Table           string        `yaml:"table"`
	Retention       time.Duration `yaml:"retention"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// CORSConfig controls cross-origin access to the API.
type CORSConfig struct {
	AllowedOrigin string `yaml:"allowed_origin"`
}

// Restricted reports whether the service only serves a single cluster.
func (c *Config) Restricted() bool {
	return c.Restriction.AllowedCluster != ""
}

// LoadConfig loads configuration from file or environment variables.
// A missing file is not an error; defaults and environment apply.
func LoadConfig(configPath string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := defaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			// Expand environment variables in the config file
			expandedData := expandEnvVars(string(data))

			if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.overrideFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Z_][A-Z0-9_]*)`)

// expandEnvVars expands ${VAR} or $VAR patterns in the input string
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		var varName string
		if match[1] == '{' {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		// Return original if not found
		return match
	})
}

// defaultConfig returns default configuration
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Registry: RegistryConfig{
			Prefix:          "/application/ecdp-config/UAT/EMR-BASE/",
			ExclusionMarker: "STRESS",
		},
		Orchestrator: OrchestratorConfig{
			DescribeConcurrency: 4,
		},
		Executor: ExecutorConfig{
			FunctionName: "app-job-submit",
			Timeout:      30 * time.Second,
		},
		Reconcile: ReconcileConfig{
			MatchPolicy: "first_match",
		},
		Metrics: MetricsConfig{
			Enabled:            true,
			Path:               "/metrics",
			CollectionInterval: 60 * time.Second,
		},
		Journal: JournalConfig{
			Driver:          "memory",
			Table:           "cluster_operations",
			Retention:       24 * time.Hour,
			MaxConnections:  5,
			MinConnections:  1,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 30 * time.Minute,
		},
		CORS: CORSConfig{
			AllowedOrigin: "*",
		},
	}
}

// overrideFromEnv overrides configuration with environment variables
func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	// PORT is set by most container platforms
	c.Server.Port = getEnvInt("PORT", c.Server.Port)
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		c.AWS.Region = region
	}
	if profile := os.Getenv("AWS_PROFILE"); profile != "" {
		c.AWS.Profile = profile
	}
	if accessKey := os.Getenv("AWS_ACCESS_KEY_ID"); accessKey != "" {
		c.AWS.AccessKeyID = accessKey
	}
	if secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY"); secretKey != "" {
		c.AWS.SecretAccessKey = secretKey
	}
	if sessionToken := os.Getenv("AWS_SESSION_TOKEN"); sessionToken != "" {
		c.AWS.SessionToken = sessionToken
	}
	c.AWS.Endpoint = getEnv("AWS_ENDPOINT_URL", c.AWS.Endpoint)

	c.Registry.Prefix = getEnv("REGISTRY_PREFIX", c.Registry.Prefix)
	c.Executor.FunctionName = getEnv("EXECUTOR_FUNCTION_NAME", c.Executor.FunctionName)
	c.Restriction.AllowedCluster = getEnv("ALLOWED_CLUSTER", c.Restriction.AllowedCluster)

	if interval := os.Getenv("METRICS_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			c.Metrics.CollectionInterval = d
		}
	}

	c.Journal.Driver = getEnv("JOURNAL_DRIVER", c.Journal.Driver)
	c.Journal.DSN = getEnv("JOURNAL_DSN", c.Journal.DSN)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Registry.Prefix == "" {
		return fmt.Errorf("registry prefix is required")
	}
	if !strings.HasSuffix(c.Registry.Prefix, "/") {
		return fmt.Errorf("registry prefix must end with /: %s", c.Registry.Prefix)
	}
	if strings.Contains(c.Restriction.AllowedCluster, "/") {
		return fmt.Errorf("allowed cluster must be a bare name: %s", c.Restriction.AllowedCluster)
	}

	if c.Executor.FunctionName == "" {
		return fmt.Errorf("executor function name is required")
	}
	if c.Executor.Timeout <= 0 {
		return fmt.Errorf("executor timeout must be positive")
	}

	switch c.Reconcile.MatchPolicy {
	case "first_match", "exact_first":
	default:
		return fmt.Errorf("invalid match policy: %s", c.Reconcile.MatchPolicy)
	}

	if c.Orchestrator.DescribeConcurrency < 1 {
		return fmt.Errorf("describe concurrency must be at least 1")
	}

	if c.Metrics.CollectionInterval <= 0 {
		return fmt.Errorf("metrics collection interval must be positive")
	}

	switch c.Journal.Driver {
	case "memory", "none":
	case "postgres":
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal dsn is required for the postgres driver")
		}
		if c.Journal.Table == "" {
			return fmt.Errorf("journal table is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid journal driver: %s", c.Journal.Driver)
	}

	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
