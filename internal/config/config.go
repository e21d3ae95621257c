// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"stratengine/internal/risk"
	"stratengine/internal/strategy"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Transport names accepted by Channel.Transport.
const (
	TransportRedis  = "redis"
	TransportMemory = "memory"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Exchange selects the venue feed and the symbols it streams.
type Exchange struct {
	Provider       string   `yaml:"provider"`
	Symbols        []string `yaml:"symbols,omitempty"`
	Depth          int      `yaml:"depth"`
	BinanceURL     string   `yaml:"binance_url"`
	StubIntervalMs int      `yaml:"stub_interval_ms"`
}

// Channel configures the market data transport.
type Channel struct {
	Transport      string `yaml:"transport"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
}

// Redis holds connection settings for the redis transport.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATS configures the execution feedback subscriber. An empty URL disables it.
type NATS struct {
	URL              string `yaml:"url"`
	FillsSubject     string `yaml:"fills_subject"`
	PositionsSubject string `yaml:"positions_subject"`
}

// Strategy declares one named instance. Empty Symbols means every streamed symbol. Params is kept as a
// loose mapping so hosts can pass options decoded from YAML or JSON alike.
type Strategy struct {
	Name    string         `yaml:"name"`
	Type    string         `yaml:"type"`
	Symbols []string       `yaml:"symbols,omitempty"`
	Params  map[string]any `yaml:"params,omitempty"`
}

// Config converts Params into a typed strategy config. Unset options stay zero for Init to default.
func (s Strategy) Config() (strategy.Config, error) {
	return strategy.ConfigFromMap(s.Params)
}

// Paper captures paper-trading account settings. When disabled, signals go to the logging executor.
type Paper struct {
	Enabled              bool    `yaml:"enabled"`
	StartingCash         float64 `yaml:"starting_cash"`
	MaxPositionPerSymbol float64 `yaml:"max_position_per_symbol"`
	FeeBps               float64 `yaml:"fee_bps"`
	FillsPath            string  `yaml:"fills_path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App        App         `yaml:"app"`
	Exchange   Exchange    `yaml:"exchange"`
	Channel    Channel     `yaml:"channel"`
	Redis      Redis       `yaml:"redis"`
	NATS       NATS        `yaml:"nats"`
	Strategies []Strategy  `yaml:"strategies"`
	Risk       risk.Limits `yaml:"risk"`
	Paper      Paper       `yaml:"paper"`
}

// Load reads a YAML file from disk, hydrates a Config struct and fills defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.WithDefaults()
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// WithDefaults fills unset fields in place.
func (c *Config) WithDefaults() {
	if c.App.Name == "" {
		c.App.Name = "stratengine"
	}
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = ":9102"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Exchange.Provider == "" {
		c.Exchange.Provider = "stub"
	}
	if c.Exchange.Depth == 0 {
		c.Exchange.Depth = 5
	}
	if c.Channel.Transport == "" {
		c.Channel.Transport = TransportRedis
	}
	if c.Channel.PollIntervalMs == 0 {
		c.Channel.PollIntervalMs = 250
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.NATS.FillsSubject == "" {
		c.NATS.FillsSubject = "fills"
	}
	if c.NATS.PositionsSubject == "" {
		c.NATS.PositionsSubject = "positions"
	}
	if len(c.Strategies) == 0 {
		c.Strategies = []Strategy{{Name: strategy.TypeMomentum, Type: strategy.TypeMomentum}}
	}
	for i := range c.Strategies {
		if c.Strategies[i].Type == "" {
			c.Strategies[i].Type = strategy.TypeMomentum
		}
		if c.Strategies[i].Name == "" {
			c.Strategies[i].Name = c.Strategies[i].Type
		}
	}
	if c.Paper.StartingCash == 0 {
		c.Paper.StartingCash = 10_000
	}
}

// Validate reports structural problems. Strategy parameters are checked with their defaults applied.
func (c *Config) Validate() error {
	switch c.Channel.Transport {
	case TransportRedis, TransportMemory:
	default:
		return fmt.Errorf("%w: channel.transport %q", ErrInvalid, c.Channel.Transport)
	}
	seen := make(map[string]struct{}, len(c.Strategies))
	for _, s := range c.Strategies {
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("%w: duplicate strategy name %q", ErrInvalid, s.Name)
		}
		seen[s.Name] = struct{}{}
		params, err := s.Config()
		if err != nil {
			return fmt.Errorf("%w: strategy %s: %v", ErrInvalid, s.Name, err)
		}
		if err := params.WithDefaults(strategy.DefaultConfig()).Validate(); err != nil {
			return fmt.Errorf("%w: strategy %s: %v", ErrInvalid, s.Name, err)
		}
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("%w: risk: %v", ErrInvalid, err)
	}
	if c.Paper.Enabled && c.Paper.StartingCash <= 0 {
		return fmt.Errorf("%w: paper.starting_cash must be positive", ErrInvalid)
	}
	return nil
}

// Symbols returns the union of feed and strategy symbols, uppercased and sorted.
func (c *Config) Symbols() []string {
	set := make(map[string]struct{})
	add := func(syms []string) {
		for _, s := range syms {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				set[s] = struct{}{}
			}
		}
	}
	add(c.Exchange.Symbols)
	for _, s := range c.Strategies {
		add(s.Symbols)
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ApplyEnv loads dotenv files (best-effort) and overrides fields from STRATENGINE_* variables.
func (c *Config) ApplyEnv(files ...string) error {
	_ = godotenv.Load(files...)

	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString("STRATENGINE_LOG_LEVEL", &c.App.LogLevel)
	setString("STRATENGINE_METRICS_ADDR", &c.App.MetricsAddr)
	setString("STRATENGINE_PROVIDER", &c.Exchange.Provider)
	setString("STRATENGINE_TRANSPORT", &c.Channel.Transport)
	setString("STRATENGINE_REDIS_ADDR", &c.Redis.Addr)
	setString("STRATENGINE_REDIS_PASSWORD", &c.Redis.Password)
	setString("STRATENGINE_NATS_URL", &c.NATS.URL)

	if v, ok := os.LookupEnv("STRATENGINE_REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: STRATENGINE_REDIS_DB: %v", ErrInvalid, err)
		}
		c.Redis.DB = db
	}
	if v, ok := os.LookupEnv("STRATENGINE_SYMBOLS"); ok && v != "" {
		c.Exchange.Symbols = strings.Split(v, ",")
	}
	return nil
}
