package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/mfenderov/cvf-papers/pkg/models"
)

// Config holds all application configuration.
type Config struct {
	Crawler       Crawler       `mapstructure:"crawler"`
	Output        Output        `mapstructure:"output"`
	Elasticsearch Elasticsearch `mapstructure:"elasticsearch"`
	LLM           LLM           `mapstructure:"llm"`
	Storage       Storage       `mapstructure:"storage"`
	MCP           MCP           `mapstructure:"mcp"`
	Conferences   []Conference  `mapstructure:"conferences"`
}

// Crawler holds crawl configuration.
type Crawler struct {
	BaseURL        string        `mapstructure:"base_url"`
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// Output holds TSV output configuration.
type Output struct {
	Header bool `mapstructure:"header"`
}

// Elasticsearch holds ES connection configuration.
type Elasticsearch struct {
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// LLM holds configuration for the question answering client.
type LLM struct {
	SocketPath string `mapstructure:"socket_path"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	MaxTokens  int    `mapstructure:"max_tokens"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// Storage holds S3/MinIO storage configuration.
type Storage struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// MCP holds MCP server configuration.
type MCP struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Conference overrides how a conference name is resolved.
type Conference struct {
	Name      string `mapstructure:"name"`
	URL       string `mapstructure:"url"`
	Layout    string `mapstructure:"layout"` // "flat", "paginated" or empty to infer from the year
	ListIndex int    `mapstructure:"list_index"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Crawler: Crawler{
			BaseURL:        "https://openaccess.thecvf.com/",
			Workers:        8,
			QueueSize:      64,
			RequestTimeout: 30 * time.Second,
			UserAgent:      "cvf-papers/1.0",
		},
		Elasticsearch: Elasticsearch{
			Addresses: []string{"http://localhost:9200"},
			Index:     "cvf-papers",
		},
		LLM: LLM{
			SocketPath: "", // takes precedence over BaseURL when set
			BaseURL:    "http://localhost:12434",
			Model:      "ai/gemma3",
			BatchSize:  64,
		},
		Storage: Storage{
			Endpoint:        "localhost:9002",
			Bucket:          "cvf-papers",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			UseSSL:          false,
		},
		MCP: MCP{
			Name:    "cvf-papers",
			Version: "1.0.0",
		},
	}
}

// Validate checks the crawl settings. Every error wraps models.ErrConfiguration.
func (c Config) Validate() error {
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", models.ErrConfiguration, c.Crawler.Workers)
	}
	if c.Crawler.QueueSize < 0 {
		return fmt.Errorf("%w: queue_size must not be negative, got %d", models.ErrConfiguration, c.Crawler.QueueSize)
	}
	if c.Crawler.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request_timeout must be positive, got %s", models.ErrConfiguration, c.Crawler.RequestTimeout)
	}
	u, err := url.Parse(c.Crawler.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: base_url must be an absolute URL, got %q", models.ErrConfiguration, c.Crawler.BaseURL)
	}
	for _, conf := range c.Conferences {
		if conf.Name == "" {
			return fmt.Errorf("%w: conference override without a name", models.ErrConfiguration)
		}
	}
	return nil
}
