package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"mjolobid-backend/internal/market"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	AWS         AWSConfig         `yaml:"aws"`
	JWT         JWTConfig         `yaml:"jwt"`
	Log         LogConfig         `yaml:"log"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Gateways    GatewaysConfig    `yaml:"gateways"`
	APNs        APNsConfig        `yaml:"apns"`
	Workers     WorkersConfig     `yaml:"workers"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port    int    `yaml:"port"`
	Host    string `yaml:"host"`
	SiteURL string `yaml:"site_url"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	DBName        string `yaml:"dbname"`
	SSLMode       string `yaml:"sslmode"`
	MigrateOnBoot bool   `yaml:"migrate_on_boot"`
}

// AWSConfig holds S3-compatible object storage configuration
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// MarketplaceConfig holds fees and limits. Zero values fall back to market.DefaultRules.
type MarketplaceConfig struct {
	CommissionRate   decimal.Decimal `yaml:"commission_rate"`
	MinBid           decimal.Decimal `yaml:"min_bid"`
	MaxBid           decimal.Decimal `yaml:"max_bid"`
	SubscriptionFee  decimal.Decimal `yaml:"subscription_fee"`
	PremiumFee       decimal.Decimal `yaml:"premium_fee"`
	SubscriptionDays int             `yaml:"subscription_days"`
	ExpiryLead       time.Duration   `yaml:"expiry_lead"`
	BoostDuration    time.Duration   `yaml:"boost_duration"`
	MinWithdrawal    decimal.Decimal `yaml:"min_withdrawal"`
	Currency         string          `yaml:"currency"`
	OnlineWindow     time.Duration   `yaml:"online_window"`
	SweepInterval    time.Duration   `yaml:"sweep_interval"`
}

// GatewaysConfig holds payment gateway credentials
type GatewaysConfig struct {
	EcoCash EcoCashConfig `yaml:"ecocash"`
	Paynow  PaynowConfig  `yaml:"paynow"`
	Pesepay PesepayConfig `yaml:"pesepay"`
}

type EcoCashConfig struct {
	Enabled      bool   `yaml:"enabled"`
	APIURL       string `yaml:"api_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	MerchantCode string `yaml:"merchant_code"`
}

type PaynowConfig struct {
	Enabled        bool   `yaml:"enabled"`
	APIURL         string `yaml:"api_url"`
	IntegrationID  string `yaml:"integration_id"`
	IntegrationKey string `yaml:"integration_key"`
}

type PesepayConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIURL    string `yaml:"api_url"`
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
}

// APNsConfig holds Apple push credentials (token-based auth)
type APNsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	KeyFile    string `yaml:"key_file"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// WorkersConfig sizes the bulk notification pool
type WorkersConfig struct {
	NotificationWorkers  int `yaml:"notification_workers"`
	NotificationQueue    int `yaml:"notification_queue"`
	NotificationParallel int `yaml:"notification_parallel"`
}

// Load reads configuration from a YAML file, then applies a .env file and MJOLOBID_* overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"MJOLOBID_DB_HOST":                &c.Database.Host,
		"MJOLOBID_DB_USER":                &c.Database.User,
		"MJOLOBID_DB_PASSWORD":            &c.Database.Password,
		"MJOLOBID_DB_NAME":                &c.Database.DBName,
		"MJOLOBID_JWT_SECRET":             &c.JWT.Secret,
		"MJOLOBID_LOG_LEVEL":              &c.Log.Level,
		"MJOLOBID_AWS_ACCESS_KEY":         &c.AWS.AccessKey,
		"MJOLOBID_AWS_SECRET_KEY":         &c.AWS.SecretKey,
		"MJOLOBID_ECOCASH_CLIENT_SECRET":  &c.Gateways.EcoCash.ClientSecret,
		"MJOLOBID_PAYNOW_INTEGRATION_KEY": &c.Gateways.Paynow.IntegrationKey,
		"MJOLOBID_PESEPAY_SECRET_KEY":     &c.Gateways.Pesepay.SecretKey,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MJOLOBID_PORT":    &c.Server.Port,
		"MJOLOBID_DB_PORT": &c.Database.Port,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.JWT.TTL == 0 {
		c.JWT.TTL = 7 * 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Marketplace.SweepInterval == 0 {
		c.Marketplace.SweepInterval = time.Minute
	}
	if c.Workers.NotificationWorkers == 0 {
		c.Workers.NotificationWorkers = 4
	}
	if c.Workers.NotificationQueue == 0 {
		c.Workers.NotificationQueue = 64
	}
	if c.Workers.NotificationParallel == 0 {
		c.Workers.NotificationParallel = 8
	}
}

// Rules converts the marketplace section into market rules
func (m MarketplaceConfig) Rules() market.Rules {
	r := market.DefaultRules()
	if !m.CommissionRate.IsZero() {
		r.CommissionRate = m.CommissionRate
	}
	if !m.MinBid.IsZero() {
		r.MinBid = m.MinBid
	}
	if !m.MaxBid.IsZero() {
		r.MaxBid = m.MaxBid
	}
	if !m.SubscriptionFee.IsZero() {
		r.SubscriptionFee = m.SubscriptionFee
	}
	if !m.PremiumFee.IsZero() {
		r.PremiumFee = m.PremiumFee
	}
	if m.SubscriptionDays > 0 {
		r.SubscriptionPeriod = time.Duration(m.SubscriptionDays) * 24 * time.Hour
	}
	if m.ExpiryLead > 0 {
		r.ExpiryLead = m.ExpiryLead
	}
	if m.BoostDuration > 0 {
		r.BoostDuration = m.BoostDuration
	}
	if !m.MinWithdrawal.IsZero() {
		r.MinWithdrawal = m.MinWithdrawal
	}
	if m.Currency != "" {
		r.Currency = m.Currency
	}
	if m.OnlineWindow > 0 {
		r.OnlineWindow = m.OnlineWindow
	}
	return r
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
