package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/devadigapratham/pandaprint/api/models"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves a setting out
const (
	DefaultListenAddress = "::"
	DefaultListenPort    = 8080
	DefaultLogLevel      = "info"
	DefaultUploadTimeout = 30 * time.Second
	DefaultMaxBackoff    = 60 * time.Second
	DefaultMQTTPort      = 8883
	DefaultFTPSPort      = 990
)

// EnvPrefix prefixes environment variables that override file settings,
// e.g. PANDAPRINT_LISTEN_PORT
const EnvPrefix = "PANDAPRINT"

// Flags holds the command line options
type Flags struct {
	ConfigFile    string
	Pretty        bool
	ExampleConfig bool
}

// Config represents the application configuration
type Config struct {
	ListenAddress string           `mapstructure:"listen-address"`
	ListenPort    int              `mapstructure:"listen-port"`
	LogLevel      string           `mapstructure:"log-level"`
	UploadTimeout time.Duration    `mapstructure:"upload-timeout"`
	MaxBackoff    time.Duration    `mapstructure:"max-backoff"`
	MQTTPort      int              `mapstructure:"mqtt-port"`
	FTPSPort      int              `mapstructure:"ftps-port"`
	Printers      []models.Printer `mapstructure:"printers"`
}

// ConfigError reports a missing or invalid setting. It is fatal at startup.
type ConfigError struct {
	Printer string
	Field   string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Printer != "" {
		return fmt.Sprintf("config: printer %s: %s %s", e.Printer, e.Field, e.Reason)
	}
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// ParseFlags parses command line flags and returns them
func ParseFlags() *Flags {
	flags := &Flags{}

	// Define flags
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to the YAML config file (required)")
	flag.BoolVar(&flags.Pretty, "pretty", false, "Human-readable console logs instead of JSON")
	flag.BoolVar(&flags.ExampleConfig, "example-config", false, "Print an example config file and exit")

	// Parse flags
	flag.Parse()

	// The config file may also be given as the only argument
	if flags.ConfigFile == "" && flag.NArg() == 1 {
		flags.ConfigFile = flag.Arg(0)
	}

	// Validate required flags
	if flags.ConfigFile == "" && !flags.ExampleConfig {
		fmt.Fprintf(os.Stderr, "Config file is required\n")
		flag.Usage()
		os.Exit(1)
	}

	return flags
}

// Load reads the config file at path. Environment variables take precedence
// over top-level settings in the file.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("listen-address", DefaultListenAddress)
	v.SetDefault("listen-port", DefaultListenPort)
	v.SetDefault("log-level", DefaultLogLevel)
	v.SetDefault("upload-timeout", DefaultUploadTimeout)
	v.SetDefault("max-backoff", DefaultMaxBackoff)
	v.SetDefault("mqtt-port", DefaultMQTTPort)
	v.SetDefault("ftps-port", DefaultFTPSPort)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks that every printer is complete and uniquely named
func (c *Config) Validate() error {
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return &ConfigError{Field: "listen-port", Reason: "is out of range"}
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return &ConfigError{Field: "log-level", Reason: fmt.Sprintf("is invalid: %q", c.LogLevel)}
	}
	if len(c.Printers) == 0 {
		return &ConfigError{Field: "printers", Reason: "must list at least one printer"}
	}

	seen := make(map[string]bool)
	for i, p := range c.Printers {
		id := p.Name
		if id == "" {
			id = fmt.Sprintf("#%d", i+1)
		}
		required := []struct{ field, value string }{
			{"name", p.Name},
			{"host", p.Host},
			{"serial", p.Serial},
			{"key", p.Key},
		}
		for _, r := range required {
			if strings.TrimSpace(r.value) == "" {
				return &ConfigError{Printer: id, Field: r.field, Reason: "is required"}
			}
		}
		if strings.ContainsAny(p.Name, "/?#") {
			return &ConfigError{Printer: id, Field: "name", Reason: "must be a single path segment"}
		}
		if seen[p.Name] {
			return &ConfigError{Printer: id, Field: "name", Reason: "is used more than once"}
		}
		seen[p.Name] = true
	}
	return nil
}

// Addr is the HTTP listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ListenAddress, strconv.Itoa(c.ListenPort))
}

// IsConfigError reports whether err is a *ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Example renders an example config file
func Example() ([]byte, error) {
	doc := map[string]any{
		"listen-address": DefaultListenAddress,
		"listen-port":    DefaultListenPort,
		"log-level":      DefaultLogLevel,
		"upload-timeout": DefaultUploadTimeout.String(),
		"max-backoff":    DefaultMaxBackoff.String(),
		"printers": []map[string]any{
			{
				"name":    "bambu",
				"host":    "bambu.lan",
				"serial":  "123456789012345",
				"key":     "12345678",
				"use_ams": true,
			},
		},
	}
	return yaml.Marshal(doc)
}
