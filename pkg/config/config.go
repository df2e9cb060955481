// Package config loads livecorrect settings from a YAML file with
// LIVECORRECT_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/gabrielmiguelok/livecorrect/pkg/logging"
	"github.com/gabrielmiguelok/livecorrect/pkg/protocol"
)

// EnvPrefix prefixes every environment override. Nested keys are separated
// by a double underscore: LIVECORRECT_PERSIST__TIMEOUT=5s.
const EnvPrefix = "LIVECORRECT_"

// DefaultFile is the config file looked up when none is given.
const DefaultFile = ".livecorrect.yml"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Duration is a time.Duration written as "30s" in YAML.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config is the top-level configuration, corresponding to .livecorrect.yml.
type Config struct {
	Address     string          `yaml:"address" koanf:"address"`
	Root        string          `yaml:"root" koanf:"root"`
	Debug       bool            `yaml:"debug" koanf:"debug"`
	OpenBrowser bool            `yaml:"open_browser" koanf:"open_browser"`
	Log         LogConfig       `yaml:"log" koanf:"log"`
	Persist     PersistConfig   `yaml:"persist" koanf:"persist"`
	Static      StaticConfig    `yaml:"static" koanf:"static"`
	Transport   TransportConfig `yaml:"transport" koanf:"transport"`
	Shutdown    ShutdownConfig  `yaml:"shutdown" koanf:"shutdown"`
	CORS        CORSConfig      `yaml:"cors" koanf:"cors"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" koanf:"level"`
	JSON  bool   `yaml:"json" koanf:"json"`
}

// PersistConfig controls where finished pages are sent.
type PersistConfig struct {
	// Endpoint overrides the default http://127.0.0.1:{port}/end.
	Endpoint string   `yaml:"endpoint" koanf:"endpoint"`
	Timeout  Duration `yaml:"timeout" koanf:"timeout"`
}

// StaticConfig restricts the files served next to the page.
type StaticConfig struct {
	// Allow lists doublestar patterns of servable paths.
	Allow []string `yaml:"allow" koanf:"allow"`
	// Suppress lists doublestar patterns of page scripts left out of the live
	// rendering.
	Suppress []string `yaml:"suppress" koanf:"suppress"`
}

// TransportConfig tunes the websocket transport.
type TransportConfig struct {
	ReadTimeout    Duration `yaml:"read_timeout" koanf:"read_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout" koanf:"write_timeout"`
	PingInterval   Duration `yaml:"ping_interval" koanf:"ping_interval"`
	MaxMessageSize int64    `yaml:"max_message_size" koanf:"max_message_size"`
	Codec          string   `yaml:"codec" koanf:"codec"`
}

// ShutdownConfig bounds graceful shutdown.
type ShutdownConfig struct {
	Timeout Duration `yaml:"timeout" koanf:"timeout"`
}

// CORSConfig lists origins allowed to call the server.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" koanf:"allowed_origins"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Address: "127.0.0.1:8000",
		Root:    ".",
		Log:     LogConfig{Level: "info"},
		Persist: PersistConfig{Timeout: Duration(30 * time.Second)},
		Static: StaticConfig{
			Allow: []string{
				"**/*.{png,jpg,jpeg,gif,svg,webp}",
				"**/*.css",
				"**/*.{woff,woff2,ttf,otf}",
				"**/*.js",
			},
			Suppress: []string{"**/transcription.js"},
		},
		Transport: TransportConfig{
			ReadTimeout:    Duration(60 * time.Second),
			WriteTimeout:   Duration(10 * time.Second),
			PingInterval:   Duration(30 * time.Second),
			MaxMessageSize: 4 << 20,
			Codec:          "phoenix",
		},
		Shutdown: ShutdownConfig{Timeout: Duration(10 * time.Second)},
		CORS:     CORSConfig{AllowedOrigins: []string{"http://127.0.0.1:*", "http://localhost:*"}},
	}
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// envKey maps LIVECORRECT_TRANSPORT__READ_TIMEOUT to transport.read_timeout.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// YAML returns the configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshalling config: %w", err)
	}
	return data, nil
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return fmt.Errorf("%w: address %q: %v", ErrInvalid, c.Address, err)
	}
	if c.Root == "" {
		return fmt.Errorf("%w: root is required", ErrInvalid)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	if c.Persist.Endpoint != "" {
		u, err := url.Parse(c.Persist.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: persist.endpoint %q must be an http(s) URL", ErrInvalid, c.Persist.Endpoint)
		}
	}
	if c.Persist.Timeout <= 0 {
		return fmt.Errorf("%w: persist.timeout must be positive", ErrInvalid)
	}
	for _, p := range append(append([]string(nil), c.Static.Allow...), c.Static.Suppress...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("%w: bad static pattern %q", ErrInvalid, p)
		}
	}
	t := c.Transport
	if t.ReadTimeout <= 0 || t.WriteTimeout <= 0 || t.PingInterval <= 0 {
		return fmt.Errorf("%w: transport timeouts must be positive", ErrInvalid)
	}
	if t.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: transport.max_message_size must be positive", ErrInvalid)
	}
	if _, err := protocol.Codecs.Get(t.Codec); err != nil {
		return fmt.Errorf("%w: transport.codec %q: must be one of %s", ErrInvalid, t.Codec, strings.Join(protocol.Codecs.Names(), ", "))
	}
	if c.Shutdown.Timeout <= 0 {
		return fmt.Errorf("%w: shutdown.timeout must be positive", ErrInvalid)
	}
	return nil
}

// PersistEndpoint returns the URL finished pages are sent to.
func (c *Config) PersistEndpoint() string {
	if c.Persist.Endpoint != "" {
		return c.Persist.Endpoint
	}
	return c.localBase() + "/end"
}

// PageURL returns the browser URL of page when served from this config.
func (c *Config) PageURL(page string) string {
	return c.localBase() + "/" + strings.TrimPrefix(page, "/")
}

// localBase is the loopback URL of the listen address.
func (c *Config) localBase() string {
	host, port, err := net.SplitHostPort(c.Address)
	if err != nil {
		host, port = "", "8000"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
