// File: server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server configuration, defaults and YAML loading.

package server

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"gopkg.in/yaml.v2"

	"github.com/momentics/hioload-session/api"
)

// ListenerConfig describes one TCP endpoint.
type ListenerConfig struct {
	Address  string `yaml:"address"`
	Security string `yaml:"security"` // "none" or "tls"
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// Config holds all server-side configuration parameters.
type Config struct {
	Name      string           `yaml:"name"`
	Listeners []ListenerConfig `yaml:"listeners"`

	MaxRequestLength    int    `yaml:"maxRequestLength"`
	ReceiveBufferSize   int    `yaml:"receiveBufferSize"`
	SendingQueueSize    int    `yaml:"sendingQueueSize"`
	TextEncoding        string `yaml:"textEncoding"`
	MaxConnectionNumber int    `yaml:"maxConnectionNumber"`

	// Workers > 0 runs commands on an ordered worker pool instead of the
	// connection's read goroutine.
	Workers int `yaml:"workers"`

	ClearIdleSession         bool          `yaml:"clearIdleSession"`
	ClearIdleSessionInterval time.Duration `yaml:"clearIdleSessionInterval"`
	IdleSessionTimeOut       time.Duration `yaml:"idleSessionTimeOut"`
	SendTimeOut              time.Duration `yaml:"sendTimeOut"`

	LogFile string `yaml:"logFile"`
	Verbose bool   `yaml:"verbose"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:                     "hioload",
		MaxRequestLength:         1024,
		ReceiveBufferSize:        4096,
		SendingQueueSize:         5,
		TextEncoding:             "utf-8",
		MaxConnectionNumber:      100,
		ClearIdleSession:         true,
		ClearIdleSessionInterval: 120 * time.Second,
		IdleSessionTimeOut:       300 * time.Second,
		SendTimeOut:              5 * time.Second,
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	invalid := func(field string, value any) error {
		return api.NewError(api.ErrCodeInvalidArgument, "invalid server config").
			WithContext("field", field).WithContext("value", value)
	}
	switch {
	case c.MaxRequestLength <= 0:
		return invalid("maxRequestLength", c.MaxRequestLength)
	case c.ReceiveBufferSize <= 0:
		return invalid("receiveBufferSize", c.ReceiveBufferSize)
	case c.SendingQueueSize <= 0:
		return invalid("sendingQueueSize", c.SendingQueueSize)
	case c.MaxConnectionNumber <= 0:
		return invalid("maxConnectionNumber", c.MaxConnectionNumber)
	case c.Workers < 0:
		return invalid("workers", c.Workers)
	case c.ClearIdleSession && (c.ClearIdleSessionInterval <= 0 || c.IdleSessionTimeOut <= 0):
		return invalid("clearIdleSessionInterval", c.ClearIdleSessionInterval)
	}
	if _, err := c.Charset(); err != nil {
		return invalid("textEncoding", c.TextEncoding)
	}
	for _, l := range c.Listeners {
		mode, err := api.ParseSecurityMode(l.Security)
		if err != nil {
			return err
		}
		if mode == api.SecurityTLS && (l.CertFile == "" || l.KeyFile == "") {
			return invalid("listeners.certFile", l.Address)
		}
	}
	return nil
}

// Charset resolves TextEncoding; empty means UTF-8.
func (c Config) Charset() (encoding.Encoding, error) {
	if c.TextEncoding == "" {
		return unicode.UTF8, nil
	}
	return htmlindex.Get(c.TextEncoding)
}
