package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/esg-analyzer/internal/domain/reports"
	"github.com/bryanwahyu/esg-analyzer/internal/infra/executor/process"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPort           = 8080
	DefaultReadTimeout    = 15 * time.Second
	DefaultWriteTimeout   = 60 * time.Second
	DefaultRateLimit      = 10
	DefaultRateBurst      = 20
	DefaultDriver         = "postgres"
	DefaultMaxOpenConns   = 20
	DefaultMaxIdleConns   = 5
	DefaultConnMaxLife    = 30 * time.Minute
	DefaultEngineCommand  = "python3"
	DefaultEngineTimeout  = 30 * time.Second
	DefaultMaxConcurrent  = 4
	DefaultQueueTimeout   = 5 * time.Second
	DefaultMaxOutputBytes = 1 << 20
	DefaultOpenAIModel    = "gpt-4o-mini"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Minio    MinioConfig    `yaml:"minio"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	CORSOrigins  []string      `yaml:"corsOrigins"`
	// APIKeys kosong = auth dimatikan
	APIKeys   []string `yaml:"apiKeys"`
	RateLimit int      `yaml:"rateLimit"` // requests per second per client
	RateBurst int      `yaml:"rateBurst"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // postgres | pgx | mysql
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// EngineConfig describes the analyzer process. Command is run with Args,
// gets one JSON document on stdin and must print one on stdout.
type EngineConfig struct {
	Command        string        `yaml:"command"`
	Args           []string      `yaml:"args"`
	Dir            string        `yaml:"dir"`
	Env            []string      `yaml:"env"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxConcurrent  int           `yaml:"maxConcurrent"`
	QueueTimeout   time.Duration `yaml:"queueTimeout"`
	MaxOutputBytes int64         `yaml:"maxOutputBytes"`
}

type MetricsConfig struct {
	RejectUnknown *bool    `yaml:"rejectUnknown"`
	RequireAll    bool     `yaml:"requireAll"`
	ExtraKeys     []string `yaml:"extraKeys"`
}

type MinioConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
	BucketName string `yaml:"bucketName"`
	Region     string `yaml:"region"`
	UseSSL     bool   `yaml:"useSSL"`
}

type OpenAIConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// Load baca file config.yaml, isi default, lalu validasi
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = key
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			RateLimit:    DefaultRateLimit,
			RateBurst:    DefaultRateBurst,
		},
		Database: DatabaseConfig{
			Driver:          DefaultDriver,
			SSLMode:         "disable",
			MaxOpenConns:    DefaultMaxOpenConns,
			MaxIdleConns:    DefaultMaxIdleConns,
			ConnMaxLifetime: DefaultConnMaxLife,
		},
		Engine: EngineConfig{
			Command:        DefaultEngineCommand,
			Args:           []string{"esg_analyzer.py"},
			Timeout:        DefaultEngineTimeout,
			MaxConcurrent:  DefaultMaxConcurrent,
			QueueTimeout:   DefaultQueueTimeout,
			MaxOutputBytes: DefaultMaxOutputBytes,
		},
		OpenAI: OpenAIConfig{Model: DefaultOpenAIModel},
	}
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case "postgres", "pgx", "mysql":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be postgres, pgx or mysql", c.Database.Driver))
	}
	if c.Database.Host == "" || c.Database.Name == "" {
		errs = append(errs, errors.New("database.host and database.name are required"))
	}
	if strings.TrimSpace(c.Engine.Command) == "" {
		errs = append(errs, errors.New("engine.command is required"))
	}
	if c.Engine.Timeout <= 0 {
		errs = append(errs, errors.New("engine.timeout must be positive"))
	}
	if c.Engine.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("engine.maxConcurrent must be positive"))
	}
	if c.Engine.QueueTimeout < 0 {
		errs = append(errs, errors.New("engine.queueTimeout must not be negative"))
	}
	if c.Engine.MaxOutputBytes <= 0 {
		errs = append(errs, errors.New("engine.maxOutputBytes must be positive"))
	}
	for _, e := range c.Engine.Env {
		if !strings.Contains(e, "=") {
			errs = append(errs, fmt.Errorf("engine.env entry %q is not KEY=VALUE", e))
		}
	}
	if c.Minio.Enabled && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		errs = append(errs, errors.New("minio.endpoint and minio.bucketName are required when minio is enabled"))
	}
	return errors.Join(errs...)
}

// MetricPolicy builds the metric validation policy from the metrics section.
func (c *Config) MetricPolicy() *reports.MetricPolicy {
	reject := true
	if c.Metrics.RejectUnknown != nil {
		reject = *c.Metrics.RejectUnknown
	}
	return reports.NewMetricPolicy(reject, c.Metrics.RequireAll, c.Metrics.ExtraKeys)
}

// RunnerConfig maps the engine section onto the process runner.
func (c *Config) RunnerConfig() process.Config {
	return process.Config{
		Command:        c.Engine.Command,
		Args:           c.Engine.Args,
		Dir:            c.Engine.Dir,
		Env:            c.Engine.Env,
		Timeout:        c.Engine.Timeout,
		MaxConcurrent:  c.Engine.MaxConcurrent,
		QueueTimeout:   c.Engine.QueueTimeout,
		MaxOutputBytes: c.Engine.MaxOutputBytes,
	}
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.Database.Driver == "mysql" {
		return c.MySQLDSN()
	}
	return c.PostgresDSN()
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.portOr(3306),
		c.Database.Name,
	)
}

// PostgresDSN builds a postgres:// URL usable by both lib/pq and pgx.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.portOr(5432)),
		Path:     "/" + c.Database.Name,
		RawQuery: url.Values{"sslmode": []string{c.Database.SSLMode}}.Encode(),
	}
	return u.String()
}

func (c *Config) portOr(def int) int {
	if c.Database.Port == 0 {
		return def
	}
	return c.Database.Port
}
