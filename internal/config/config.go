// Package config loads and validates connector configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultHTTPTimeout = 10 * time.Second

// Credentials captures API credentials used for authenticated requests.
// The stringers are redacted so secrets never leak into logs or errors.
type Credentials struct {
	APIKey    string `yaml:"apiKey"`
	APISecret string `yaml:"apiSecret"`
}

func (c Credentials) String() string   { return "credentials(redacted)" }
func (c Credentials) GoString() string { return "config.Credentials{redacted}" }

// Duration wraps time.Duration with YAML string support ("10s", "500ms").
type Duration time.Duration

// UnmarshalYAML accepts Go duration strings and bare integers (seconds).
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil || strings.TrimSpace(node.Value) == "" {
		*d = 0
		return nil
	}
	text := strings.TrimSpace(node.Value)
	parsed, err := time.ParseDuration(text)
	if err != nil {
		var seconds int
		if _, convErr := fmt.Sscanf(text, "%d", &seconds); convErr != nil {
			return fmt.Errorf("invalid duration %q", text)
		}
		parsed = time.Duration(seconds) * time.Second
	}
	if parsed < 0 {
		return fmt.Errorf("duration %q must not be negative", text)
	}
	*d = Duration(parsed)
	return nil
}

// ExchangeSettings aggregates transport endpoints and credentials for one
// exchange. Loaded once at startup and immutable for the adapter's lifetime.
type ExchangeSettings struct {
	RESTBaseURL string      `yaml:"restBaseURL"`
	WSBaseURL   string      `yaml:"wsBaseURL"`
	Credentials Credentials `yaml:"credentials"`
	HTTPTimeout Duration    `yaml:"httpTimeout"`
	// WatchSymbols are trade streams opened at startup and held for the
	// process lifetime, independent of any HTTP listener.
	WatchSymbols []string `yaml:"watchSymbols"`
}

// Timeout returns the REST timeout, falling back to the connector default.
func (s ExchangeSettings) Timeout() time.Duration {
	if s.HTTPTimeout <= 0 {
		return defaultHTTPTimeout
	}
	return time.Duration(s.HTTPTimeout)
}

// TelemetrySettings configures the OTLP metric exporter.
type TelemetrySettings struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// Config is the connector configuration tree.
type Config struct {
	Environment string                      `yaml:"environment"`
	ListenAddr  string                      `yaml:"listenAddr"`
	Telemetry   TelemetrySettings           `yaml:"telemetry"`
	Exchanges   map[string]ExchangeSettings `yaml:"exchanges"`
}

// Load reads the YAML file at path, applies environment overrides, and
// validates the result.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes raw YAML, applies environment overrides, and validates.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = ":8080"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "prod"
	}
}

// applyEnv overlays CONNECTOR_<EXCHANGE>_API_KEY / _API_SECRET onto the
// loaded file so credentials can stay out of configuration on disk.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for name, settings := range c.Exchanges {
		prefix := "CONNECTOR_" + strings.ToUpper(name) + "_"
		if key, ok := lookup(prefix + "API_KEY"); ok {
			settings.Credentials.APIKey = key
		}
		if secret, ok := lookup(prefix + "API_SECRET"); ok {
			settings.Credentials.APISecret = secret
		}
		c.Exchanges[name] = settings
	}
}

// Validate rejects configurations no adapter can safely run with. Exchange
// names must be unique case-insensitively: two entries that differ only in
// case would silently shadow each other at routing time.
func (c Config) Validate() error {
	if len(c.Exchanges) == 0 {
		return fmt.Errorf("config: no exchanges configured")
	}
	seen := make(map[string]string, len(c.Exchanges))
	for name, settings := range c.Exchanges {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return fmt.Errorf("config: exchange with empty name")
		}
		folded := strings.ToLower(trimmed)
		if prev, dup := seen[folded]; dup {
			return fmt.Errorf("config: exchanges %q and %q map to the same adapter", prev, name)
		}
		seen[folded] = name
		if strings.TrimSpace(settings.RESTBaseURL) == "" {
			return fmt.Errorf("config: exchange %q missing restBaseURL", name)
		}
	}
	return nil
}
