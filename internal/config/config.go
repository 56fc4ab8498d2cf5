// Package config содержит логику чтения конфигурации аукционного сервиса.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/auctionhouse/internal/money"
)

// Config содержит параметры конфигурации аукционного сервиса.
// Приоритет источников: окружение, явно заданные флаги, YAML-файл, значения по умолчанию.
type Config struct {
	RunAddress                 string        `env:"RUN_ADDRESS" yaml:"run_address"`
	DatabaseURI                string        `env:"DATABASE_URI" yaml:"database_uri"`
	NotificationServiceAddress string        `env:"NOTIFICATION_SERVICE_ADDRESS" yaml:"notification_service_address"`
	AuthSecret                 string        `env:"AUTH_SECRET" yaml:"auth_secret"`
	BidIncrement               string        `env:"BID_INCREMENT" yaml:"bid_increment"`
	SweepInterval              time.Duration `env:"SWEEP_INTERVAL" yaml:"sweep_interval"`
	LockTimeout                time.Duration `env:"LOCK_TIMEOUT" yaml:"lock_timeout"`
	EndingSoonWindow           time.Duration `env:"ENDING_SOON_WINDOW" yaml:"ending_soon_window"`
	LogLevel                   string        `env:"LOG_LEVEL" yaml:"log_level"`
	LogFile                    string        `env:"LOG_FILE" yaml:"log_file"`
	ConfigFile                 string        `env:"CONFIG" yaml:"-"`
}

func defaults() *Config {
	return &Config{
		RunAddress:       "localhost:8080",
		AuthSecret:       "auctionhouse-secret",
		BidIncrement:     "1.00",
		SweepInterval:    time.Second,
		LockTimeout:      2 * time.Second,
		EndingSoonWindow: 24 * time.Hour,
		LogLevel:         "info",
	}
}

// Parse считывает конфигурацию из переменных окружения, флагов командной строки и файла.
func Parse() (*Config, error) {
	cfg := defaults()

	var fromFlags Config
	flag.StringVar(&fromFlags.RunAddress, "a", cfg.RunAddress, "address and port for HTTP server")
	flag.StringVar(&fromFlags.DatabaseURI, "d", "", "database URI, in-memory storage if empty")
	flag.StringVar(&fromFlags.NotificationServiceAddress, "n", "", "notification service address")
	flag.StringVar(&fromFlags.BidIncrement, "i", cfg.BidIncrement, "bid increment")
	flag.StringVar(&fromFlags.ConfigFile, "c", "", "path to YAML config file")

	flag.Parse()

	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})

	var fromEnv Config
	if err := env.Parse(&fromEnv); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	path := fromFlags.ConfigFile
	if fromEnv.ConfigFile != "" {
		path = fromEnv.ConfigFile
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}

	if explicit["a"] {
		cfg.RunAddress = fromFlags.RunAddress
	}
	if explicit["d"] {
		cfg.DatabaseURI = fromFlags.DatabaseURI
	}
	if explicit["n"] {
		cfg.NotificationServiceAddress = fromFlags.NotificationServiceAddress
	}
	if explicit["i"] {
		cfg.BidIncrement = fromFlags.BidIncrement
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.RunAddress == "" {
		return fmt.Errorf("run address is empty")
	}
	inc, err := money.Parse(c.BidIncrement)
	if err != nil {
		return fmt.Errorf("bid increment %q: %w", c.BidIncrement, err)
	}
	if inc.IsZero() {
		return fmt.Errorf("bid increment must be positive")
	}
	if c.SweepInterval <= 0 || c.LockTimeout <= 0 || c.EndingSoonWindow <= 0 {
		return fmt.Errorf("durations must be positive")
	}
	return nil
}

// Increment возвращает шаг ставки. Значение проверено в Parse.
func (c *Config) Increment() money.Money {
	return money.MustParse(c.BidIncrement)
}
