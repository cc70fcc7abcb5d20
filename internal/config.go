package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Gateway       GatewayConfig       `mapstructure:"gateway" validate:"required"`
	Websocket     WebsocketConfig     `mapstructure:"websocket"`
	Notifier      NotifierConfig      `mapstructure:"notifier"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

// GatewayConfig holds the Wompi credentials and the fixed checkout amount.
// PublicKey is safe to hand to browsers; the two secrets are not.
type GatewayConfig struct {
	PublicKey       string        `mapstructure:"public_key" validate:"required"`
	IntegritySecret string        `mapstructure:"integrity_secret" validate:"required"`
	EventsSecret    string        `mapstructure:"events_secret" validate:"required"`
	AmountInCents   int64         `mapstructure:"amount_in_cents"`
	Currency        string        `mapstructure:"currency"`
	ReplayWindow    time.Duration `mapstructure:"replay_window"`
}

type WebsocketConfig struct {
	APIKey          string        `mapstructure:"api_key" validate:"required"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	SendBufferSize  int           `mapstructure:"send_buffer_size"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
}

type NotifierConfig struct {
	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- DEFAULTS -----------------

const (
	DefaultAmountInCents = 1500000 // $15,000 COP
	DefaultCurrency      = "COP"
	DefaultReplayWindow  = 5 * time.Minute
)

func (c *GatewayConfig) EffectiveAmount() int64 {
	if c.AmountInCents <= 0 {
		return DefaultAmountInCents
	}
	return c.AmountInCents
}

func (c *GatewayConfig) EffectiveCurrency() string {
	if c.Currency == "" {
		return DefaultCurrency
	}
	return c.Currency
}

func (c *GatewayConfig) EffectiveReplayWindow() time.Duration {
	if c.ReplayWindow <= 0 {
		return DefaultReplayWindow
	}
	return c.ReplayWindow
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds the configuration purely from environment
// variables, used for container deployments where no config file ships.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("PORT", 3000),
			BaseURL:           getEnv("BASE_URL", ""),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			Source:       getEnv("DATABASE_URL", ""),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Gateway: GatewayConfig{
			PublicKey:       getEnv("WOMPI_PUBLIC_KEY", ""),
			IntegritySecret: getEnv("WOMPI_INTEGRITY_SECRET", ""),
			EventsSecret:    getEnv("WOMPI_EVENTS_SECRET", ""),
			AmountInCents:   int64(getEnvAsInt("PAYMENT_AMOUNT_IN_CENTS", DefaultAmountInCents)),
			Currency:        getEnv("PAYMENT_CURRENCY", DefaultCurrency),
		},
		Websocket: WebsocketConfig{
			APIKey: getEnv("WS_API_KEY", ""),
		},
		Notifier: NotifierConfig{
			NATSURL:     getEnv("NATS_URL", ""),
			NATSSubject: getEnv("NATS_SUBJECT", "payments.status"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gateway config: %v", err))
	}

	if err := c.Websocket.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("websocket config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *GatewayConfig) Validate() error {
	if c.PublicKey == "" {
		return errors.New("public_key is required")
	}
	if c.IntegritySecret == "" {
		return errors.New("integrity_secret is required")
	}
	if c.EventsSecret == "" {
		return errors.New("events_secret is required")
	}
	if c.AmountInCents < 0 {
		return errors.New("amount_in_cents cannot be negative")
	}
	return nil
}

func (c *WebsocketConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("api_key is required")
	}
	return nil
}
