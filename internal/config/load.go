package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// matches $(VAR_NAME)
var envPattern = regexp.MustCompile(`\$\(([A-Za-z0-9_]+)\)`)

// replaces $(VAR) with os.Getenv(VAR)
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		key := mapEnvKey(envPattern.FindStringSubmatch(m)[1])
		return os.Getenv(key)
	})
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse expands env placeholders, unmarshals, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling yaml: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Monitor.Schedule == "" {
		c.Monitor.Schedule = "*/30 * * * *"
	}
	if c.Monitor.ScanConcurrency <= 0 {
		c.Monitor.ScanConcurrency = 4
	}
	if c.Notify.SMTP.Port == 0 {
		c.Notify.SMTP.Port = 587
	}
	if c.Notify.SMTP.TLS == "" {
		c.Notify.SMTP.TLS = "opportunistic"
	}
	if c.Notify.SMTP.Timeout == 0 {
		c.Notify.SMTP.Timeout = 30 * time.Second
	}
	if c.Notify.MQTT.ClientID == "" {
		c.Notify.MQTT.ClientID = "rec-pruner"
	}
	if c.Notify.MQTT.Topic == "" {
		c.Notify.MQTT.Topic = "rec-pruner/events"
	}
	if c.ConfigReload.Method == "" {
		c.ConfigReload.Method = "auto"
	}
	if c.ConfigReload.PollInterval == 0 {
		c.ConfigReload.PollInterval = 10 * time.Second
	}
	if c.ConfigReload.Debounce == 0 {
		c.ConfigReload.Debounce = 500 * time.Millisecond
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Monitor.Paths) == 0 {
		errs = append(errs, errors.New("monitor.paths: at least one path is required"))
	}
	for i, p := range c.Monitor.Paths {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("monitor.paths[%d]: empty path", i))
		}
	}
	if _, err := cron.ParseStandard(c.Monitor.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("monitor.schedule %q: %w", c.Monitor.Schedule, err))
	}
	if c.Monitor.MinFreeGB < 0 {
		errs = append(errs, errors.New("monitor.minFreeGB: must not be negative"))
	}
	if c.Monitor.BufferPercent < 0 {
		errs = append(errs, errors.New("monitor.bufferPercent: must not be negative"))
	}
	if c.Monitor.DeletionDelay < 0 {
		errs = append(errs, errors.New("monitor.deletionDelay: must not be negative"))
	}

	if s := c.Notify.SMTP; s.Enabled {
		if s.Host == "" {
			errs = append(errs, errors.New("notify.smtp.host: required when smtp is enabled"))
		}
		if s.From == "" {
			errs = append(errs, errors.New("notify.smtp.from: required when smtp is enabled"))
		}
		if len(s.To) == 0 {
			errs = append(errs, errors.New("notify.smtp.to: at least one recipient is required"))
		}
		switch s.TLS {
		case "mandatory", "opportunistic", "none":
		default:
			errs = append(errs, fmt.Errorf("notify.smtp.tls: unknown policy %q", s.TLS))
		}
	}
	if m := c.Notify.MQTT; m.Enabled && m.Broker == "" {
		errs = append(errs, errors.New("notify.mqtt.broker: required when mqtt is enabled"))
	}

	switch c.ConfigReload.Method {
	case "auto", "fsnotify", "poll":
	default:
		errs = append(errs, fmt.Errorf("configReload.method: unknown mode %q", c.ConfigReload.Method))
	}

	return errors.Join(errs...)
}
