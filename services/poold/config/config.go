package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for poold.
type Config struct {
	ListenAddress string       `yaml:"listen"`
	ParamsPath    string       `yaml:"params"`
	StateDir      string       `yaml:"state_dir"`
	DatabasePath  string       `yaml:"database"`
	Log           LogConfig    `yaml:"log"`
	Auth          AuthConfig   `yaml:"auth"`
	RateLimit     RateLimit    `yaml:"rate_limit"`
	Quota         QuotaConfig  `yaml:"quota"`
	Feeder        FeederConfig `yaml:"feeder"`
	Notify        NotifyConfig `yaml:"notify"`
}

// LogConfig selects verbosity and optional rotating file output.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// AuthConfig configures HMAC-signed bearer tokens.
type AuthConfig struct {
	Disabled      bool     `yaml:"disabled"`
	HMACSecret    string   `yaml:"hmac_secret"`
	HMACSecretEnv string   `yaml:"hmac_secret_env"`
	Issuer        string   `yaml:"issuer"`
	Audience      string   `yaml:"audience"`
	ClockSkew     Duration `yaml:"clock_skew"`
}

// Secret resolves the signing secret, preferring the environment variable.
func (a AuthConfig) Secret() string {
	if env := strings.TrimSpace(a.HMACSecretEnv); env != "" {
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(a.HMACSecret)
}

// RateLimit bounds requests per client.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"rps"`
	Burst             int     `yaml:"burst"`
}

// QuotaConfig caps swap traffic per trader and epoch.
type QuotaConfig struct {
	MaxRequests uint32   `yaml:"max_requests"`
	MaxVolume   uint64   `yaml:"max_volume"`
	Epoch       Duration `yaml:"epoch"`
}

// FeederConfig tunes the oracle aggregation loop.
type FeederConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
	MaxAge   Duration `yaml:"max_age"`
	MinFeeds int      `yaml:"min_feeds"`
	Base     string   `yaml:"base"`
	Quote    string   `yaml:"quote"`
	Sources  []Source `yaml:"sources"`
}

// Source describes an upstream price feed.
type Source struct {
	Name     string            `yaml:"name"`
	Type     string            `yaml:"type"`
	Endpoint string            `yaml:"endpoint"`
	APIKey   string            `yaml:"api_key"`
	Assets   map[string]string `yaml:"assets"`
	Price    string            `yaml:"price"`
}

// NotifyConfig controls the notification fan-out.
type NotifyConfig struct {
	Buffer      int    `yaml:"buffer"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.ParamsPath == "" {
		cfg.ParamsPath = "params.toml"
	}
	if cfg.StateDir == "" {
		cfg.StateDir = "./poold-data/state"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "./poold-data/poold.sqlite"
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "poold"
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 30 * time.Second
	}
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 20
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 40
	}
	if cfg.Quota.Epoch.Duration == 0 {
		cfg.Quota.Epoch.Duration = time.Minute
	}
	if cfg.Feeder.Interval.Duration == 0 {
		cfg.Feeder.Interval.Duration = 30 * time.Second
	}
	if cfg.Feeder.MaxAge.Duration == 0 {
		cfg.Feeder.MaxAge.Duration = 2 * time.Minute
	}
	if cfg.Feeder.MinFeeds <= 0 {
		cfg.Feeder.MinFeeds = 1
	}
	if cfg.Notify.Buffer <= 0 {
		cfg.Notify.Buffer = 256
	}
	if cfg.Notify.NATSSubject == "" {
		cfg.Notify.NATSSubject = "assetpool.events"
	}
}

func validate(cfg Config) error {
	if !cfg.Auth.Disabled && cfg.Auth.Secret() == "" {
		return fmt.Errorf("auth: hmac secret required unless auth is disabled")
	}
	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	if cfg.Quota.Epoch.Duration < time.Second {
		return fmt.Errorf("quota: epoch must be at least one second")
	}
	if !cfg.Feeder.Enabled {
		return nil
	}
	if len(cfg.Feeder.Sources) == 0 {
		return fmt.Errorf("feeder: at least one source must be configured")
	}
	if strings.TrimSpace(cfg.Feeder.Base) == "" || strings.TrimSpace(cfg.Feeder.Quote) == "" {
		return fmt.Errorf("feeder: base and quote must be configured")
	}
	if cfg.Feeder.MinFeeds > len(cfg.Feeder.Sources) {
		return fmt.Errorf("feeder: min_feeds %d exceeds %d sources", cfg.Feeder.MinFeeds, len(cfg.Feeder.Sources))
	}
	return nil
}
