package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the study service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type BasicConfig struct {
	ServerAddress      string `json:"server_address"`
	InvoiceDir         string `json:"invoice_dir"`
	PurchaseDir        string `json:"purchase_dir"`
	ModifiedInvoiceDir string `json:"modified_invoice_dir"`
	ResultsDir         string `json:"results_dir"`

	// ModifiedRatio is the probability of drawing from the error-injected
	// invoice pool. Zero means the default 2/3 study weighting.
	ModifiedRatio float64 `json:"modified_ratio"`
	TasksPerLevel int     `json:"tasks_per_level"`

	Provider              string `json:"provider"`
	GatewayTimeoutSeconds int    `json:"gateway_timeout_seconds"`
	GatewayRetries        int    `json:"gateway_retries"`

	SessionTTLMinutes int `json:"session_ttl_minutes"`

	MinWorkers        int `json:"min_workers"`
	MaxWorkers        int `json:"max_workers"`
	QueueSize         int `json:"queue_size"`
	WorkerIdleTimeout int `json:"worker_idle_timeout"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	basic := &cfg.BasicConfig
	if basic.InvoiceDir == "" || basic.PurchaseDir == "" || basic.ModifiedInvoiceDir == "" {
		return nil, fmt.Errorf("invoice_dir, purchase_dir and modified_invoice_dir must be configured")
	}
	if basic.ResultsDir == "" {
		basic.ResultsDir = "results"
	}

	baseDir := filepath.Dir(absPath)
	for _, dir := range []*string{&basic.InvoiceDir, &basic.PurchaseDir, &basic.ModifiedInvoiceDir, &basic.ResultsDir} {
		if !filepath.IsAbs(*dir) {
			*dir = filepath.Join(baseDir, *dir)
		}
	}

	return &cfg, nil
}
