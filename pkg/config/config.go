package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultRetry is the venue retry schedule: the delay before each attempt.
var DefaultRetry = []time.Duration{0, 500 * time.Millisecond, 1500 * time.Millisecond}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Signals struct {
		// Timezone interprets window literals. It has no default.
		Timezone string `yaml:"timezone" validate:"required"`
	} `yaml:"signals"`
	Market struct {
		BaseURL    string          `yaml:"base_url" default:"https://api.binance.com" validate:"url"`
		UserAgent  string          `yaml:"user_agent" default:"sigtrack/1.0"`
		Timeout    time.Duration   `yaml:"timeout" default:"10s"`
		Interval   string          `yaml:"interval" default:"1m" validate:"oneof=1m 5m 1h"`
		PageLimit  int             `yaml:"page_limit" default:"1000" validate:"gt=0,lte=1000"`
		PageDelay  time.Duration   `yaml:"page_delay" default:"20ms"`
		Retry      []time.Duration `yaml:"retry"`
		SymbolsTTL time.Duration   `yaml:"symbols_ttl" default:"1h"`
		PricesTTL  time.Duration   `yaml:"prices_ttl" default:"5s"`
		CandlesTTL time.Duration   `yaml:"candles_ttl" default:"30s"`
		Breaker    struct {
			Failures uint32        `yaml:"failures" default:"5" validate:"gt=0"`
			Timeout  time.Duration `yaml:"timeout" default:"30s"`
		} `yaml:"breaker"`
	} `yaml:"market"`
	Cache struct {
		Backend string `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
		Redis   struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"sigtrack"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Evaluation struct {
		Interval          time.Duration `yaml:"interval" default:"60s" validate:"gt=0"`
		InvalidThreshold  int           `yaml:"invalid_threshold" default:"2" validate:"gte=1"`
		IncludeFillCandle bool          `yaml:"include_fill_candle"`
	} `yaml:"evaluation"`
	Storage struct {
		ActivePath  string `yaml:"active_path" default:"data/active.json" validate:"required"`
		HistoryPath string `yaml:"history_path" default:"data/history.json" validate:"required"`
	} `yaml:"storage"`
	Audit struct {
		Dir          string `yaml:"dir" default:"data/audits" validate:"required"`
		AppVersion   string `yaml:"app_version" default:"live-1.3"`
		ModelVersion string `yaml:"model_version" default:"n/a"`
		PromptID     string `yaml:"prompt_id" default:"extract_v1"`
		SourceType   string `yaml:"source_type" default:"json"`
		OriginID     string `yaml:"origin_id" default:"watchlist"`
		Kafka        struct {
			Enabled      bool          `yaml:"enabled"`
			Brokers      []string      `yaml:"brokers" validate:"required_if=Enabled true"`
			TopicPrefix  string        `yaml:"topic_prefix" default:"sigtrack.audit"`
			Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
			RequiredAcks int           `yaml:"required_acks" default:"1" validate:"oneof=-1 0 1"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"kafka"`
		ClickHouse struct {
			Enabled     bool          `yaml:"enabled"`
			Host        string        `yaml:"host" validate:"required_if=Enabled true"`
			Port        int           `yaml:"port" default:"9000"`
			Database    string        `yaml:"database" default:"sigtrack"`
			User        string        `yaml:"user" default:"default"`
			Password    string        `yaml:"password"`
			Table       string        `yaml:"table" default:"audit_records"`
			UseHTTP     bool          `yaml:"use_http"`
			AsyncInsert bool          `yaml:"async_insert"`
			DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
			ReadTimeout time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"clickhouse"`
	} `yaml:"audit"`
}

// Load reads and parses a YAML configuration file. Missing keys take their
// defaults; the result is validated.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(c.Market.Retry) == 0 {
		c.Market.Retry = append([]time.Duration(nil), DefaultRetry...)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with SIGTRACK_* environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("SIGTRACK_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("SIGTRACK_TIMEZONE"); v != "" {
		c.Signals.Timezone = v
	}
	if v := getenv("SIGTRACK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("SIGTRACK_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SIGTRACK_SERVER_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("SIGTRACK_MARKET_BASE_URL"); v != "" {
		c.Market.BaseURL = v
	}
	if v := getenv("SIGTRACK_REDIS_ADDR"); v != "" {
		c.Cache.Backend = "redis"
		c.Cache.Redis.Addr = v
	}
	if v := getenv("SIGTRACK_REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := getenv("SIGTRACK_ACTIVE_PATH"); v != "" {
		c.Storage.ActivePath = v
	}
	if v := getenv("SIGTRACK_HISTORY_PATH"); v != "" {
		c.Storage.HistoryPath = v
	}
	if v := getenv("SIGTRACK_AUDIT_DIR"); v != "" {
		c.Audit.Dir = v
	}
	if v := getenv("SIGTRACK_KAFKA_BROKERS"); v != "" {
		c.Audit.Kafka.Enabled = true
		c.Audit.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("SIGTRACK_CLICKHOUSE_HOST"); v != "" {
		c.Audit.ClickHouse.Enabled = true
		c.Audit.ClickHouse.Host = v
	}
	if v := getenv("SIGTRACK_CLICKHOUSE_PASSWORD"); v != "" {
		c.Audit.ClickHouse.Password = v
	}
	return nil
}

var validate = validator.New()

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required when cache.backend is redis")
	}
	for i, d := range c.Market.Retry {
		if d < 0 {
			return fmt.Errorf("market.retry[%d] must not be negative", i)
		}
	}
	return nil
}

// Location resolves signals.timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Signals.Timezone)
	if err != nil {
		return nil, fmt.Errorf("signals.timezone %q: %w", c.Signals.Timezone, err)
	}
	return loc, nil
}
