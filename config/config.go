// Package config loads named connection profiles from a TOML file, so a
// CLI or long-running agent can keep server addresses and credentials out
// of its command line and source.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level file shape: a set of named profiles.
type Config struct {
	Profiles map[string]Profile `toml:"profile"`
}

// Profile describes one server to connect to and how to authenticate.
type Profile struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`

	TLS      bool `toml:"tls"`
	StartTLS bool `toml:"starttls"`

	Username string `toml:"username"`
	Password string `toml:"password"`
	Mechanism string `toml:"mechanism"` // "", "PLAIN", "LOGIN", "CRAM-MD5", "XOAUTH2", "OAUTHBEARER", "EXTERNAL"
	OAuthToken string `toml:"oauth_token"`

	IdleTimeout time.Duration `toml:"idle_timeout"`
}

// Addr returns the dial address for p.
func (p Profile) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// Load reads and validates a TOML config file from path.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	for name, p := range cfg.Profiles {
		if p.Host == "" {
			return nil, fmt.Errorf("config: profile %q: host is required", name)
		}
		if p.Port == 0 {
			return nil, fmt.Errorf("config: profile %q: port is required", name)
		}
		if p.TLS && p.StartTLS {
			return nil, fmt.Errorf("config: profile %q: tls and starttls cannot both be set", name)
		}
	}
	return &cfg, nil
}

// Lookup returns the named profile, or false if it is not defined.
func (c *Config) Lookup(name string) (Profile, bool) {
	p, ok := c.Profiles[name]
	return p, ok
}
