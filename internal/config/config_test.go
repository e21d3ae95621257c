package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "stratengine-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.App.MetricsAddr != ":9200" || cfg.App.LogLevel != "debug" {
		t.Fatalf("unexpected app section: %+v", cfg.App)
	}
	if cfg.Exchange.Provider != "binance" || cfg.Exchange.Depth != 10 {
		t.Fatalf("unexpected exchange section: %+v", cfg.Exchange)
	}
	if cfg.Channel.Transport != TransportMemory {
		t.Fatalf("unexpected transport: %s", cfg.Channel.Transport)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("unexpected redis section: %+v", cfg.Redis)
	}
	if cfg.NATS.FillsSubject != "exec.fills" || cfg.NATS.PositionsSubject != "positions" {
		t.Fatalf("unexpected nats subjects: %+v", cfg.NATS)
	}
	if len(cfg.Strategies) != 2 {
		t.Fatalf("expected 2 strategies, got %d", len(cfg.Strategies))
	}
	first, err := cfg.Strategies[0].Config()
	if err != nil {
		t.Fatalf("first strategy params: %v", err)
	}
	if cfg.Strategies[0].Name != "btc-momentum" || first.LookbackPeriod != 30 || first.Threshold != 0.02 {
		t.Fatalf("unexpected first strategy: %+v %+v", cfg.Strategies[0], first)
	}
	second, err := cfg.Strategies[1].Config()
	if err != nil {
		t.Fatalf("second strategy params: %v", err)
	}
	if cfg.Strategies[1].Name != "trend" || second.WindowSecs != 90 || second.MinVolume != 1000 {
		t.Fatalf("unnamed strategy should default to its type: %+v %+v", cfg.Strategies[1], second)
	}
	if cfg.Risk.MaxNotionalPerTrade != 100 || cfg.Risk.MaxPositionSize != 2 || cfg.Risk.MaxOrdersPerSecond != 5 {
		t.Fatalf("unexpected risk section: %+v", cfg.Risk)
	}
	if len(cfg.Risk.AllowedSymbols) != 2 {
		t.Fatalf("unexpected allowed symbols: %v", cfg.Risk.AllowedSymbols)
	}
	if !cfg.Paper.Enabled || cfg.Paper.StartingCash != 5000 || cfg.Paper.FeeBps != 2.5 {
		t.Fatalf("unexpected paper section: %+v", cfg.Paper)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("testdata config should validate: %v", err)
	}
	if got := cfg.Symbols(); !reflect.DeepEqual(got, []string{"BTCUSDT", "ETHUSDT"}) {
		t.Fatalf("unexpected symbol union: %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDefaults(t *testing.T) {
	var cfg Config
	cfg.WithDefaults()
	if cfg.Channel.Transport != TransportRedis || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected transport defaults: %+v %+v", cfg.Channel, cfg.Redis)
	}
	if len(cfg.Strategies) != 1 || cfg.Strategies[0].Name != "momentum" {
		t.Fatalf("expected a default momentum strategy, got %+v", cfg.Strategies)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := &Config{}
	cfg.WithDefaults()
	cfg.Exchange.Symbols = []string{"SOLUSDT"}
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", loaded, cfg)
	}
	if err := Save(path, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"duplicate name": func(c *Config) {
			c.Strategies = append(c.Strategies, Strategy{Name: "momentum", Type: "trend"})
		},
		"bad params": func(c *Config) {
			c.Strategies[0].Params = map[string]any{"threshold": -1.0}
		},
		"fractional lookback": func(c *Config) {
			c.Strategies[0].Params = map[string]any{"lookback_period": 2.5}
		},
		"wrong param type": func(c *Config) {
			c.Strategies[0].Params = map[string]any{"threshold": "high"}
		},
		"bad transport": func(c *Config) {
			c.Channel.Transport = "kafka"
		},
		"negative notional": func(c *Config) {
			c.Risk.MaxNotionalPerTrade = -5
		},
		"negative rate": func(c *Config) {
			c.Risk.MaxOrdersPerMinute = -1
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			var cfg Config
			cfg.WithDefaults()
			mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	dotenv := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(dotenv, []byte("STRATENGINE_NATS_URL=nats://dotenv:4222\n"), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	t.Setenv("STRATENGINE_LOG_LEVEL", "warn")
	t.Setenv("STRATENGINE_REDIS_ADDR", "cache:6380")
	t.Setenv("STRATENGINE_REDIS_DB", "3")
	t.Setenv("STRATENGINE_SYMBOLS", "btcusdt,solusdt")
	// Registered so the variable loaded from the dotenv file is unset afterwards.
	t.Setenv("STRATENGINE_NATS_URL", "")
	os.Unsetenv("STRATENGINE_NATS_URL")

	var cfg Config
	cfg.WithDefaults()
	if err := cfg.ApplyEnv(dotenv); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.App.LogLevel != "warn" || cfg.Redis.Addr != "cache:6380" || cfg.Redis.DB != 3 {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.App, cfg.Redis)
	}
	if cfg.NATS.URL != "nats://dotenv:4222" {
		t.Fatalf("dotenv value not applied: %q", cfg.NATS.URL)
	}
	if got := cfg.Symbols(); !reflect.DeepEqual(got, []string{"BTCUSDT", "SOLUSDT"}) {
		t.Fatalf("unexpected symbols: %v", got)
	}

	t.Setenv("STRATENGINE_REDIS_DB", "two")
	if err := cfg.ApplyEnv(dotenv); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for bad db, got %v", err)
	}
}
