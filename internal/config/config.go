// Package config loads and holds all maskwatch configuration.
// Settings are layered: defaults → maskwatch.yaml → environment variables
// (env vars win) over a narrow allowlist of operational knobs.
package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// SASL holds SASL PLAIN credentials, if configured.
type SASL struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Oper holds the OPER credentials used on connect. A non-empty File
// switches the handshake to challenge-response instead of plaintext OPER.
type Oper struct {
	Name string `yaml:"name"`
	Pass string `yaml:"pass"`
	File string `yaml:"file"`
}

// Management configures the loopback-only operator HTTP surface (§4.N).
type Management struct {
	MetricsAddr string `yaml:"metricsAddr"`
	Token       string `yaml:"token"` // optional bearer token; empty = no auth
}

// Config holds the full engine configuration.
type Config struct {
	Server     string `yaml:"server"`
	SocksProxy string `yaml:"socksProxy"` // optional SOCKS5 upstream, e.g. "127.0.0.1:9050"
	Nickname   string `yaml:"nickname"`
	Username   string `yaml:"username"`
	Realname   string `yaml:"realname"`
	Password   string `yaml:"password"`

	SASL SASL `yaml:"sasl"`
	Oper Oper `yaml:"oper"`

	Channel  string `yaml:"channel"`
	Verbose  string `yaml:"verbose"`
	AntiIdle bool   `yaml:"antiidle"`

	// Umode is the mode string set on ourselves at YOUREOPER (numeric 381),
	// e.g. a server-notice mask covering client connect/exit/nick change.
	// Different ircds spell this differently, so it's a plain template
	// rather than a parsed set of flags.
	Umode string `yaml:"umode"`

	History  int    `yaml:"history"`
	Database string `yaml:"database"`

	CliConnRe string `yaml:"cliconnre"`
	CliExitRe string `yaml:"cliexitre"`
	CliNickRe string `yaml:"clinickre"`

	BanCmd string `yaml:"bancmd"`

	LogLevel   string     `yaml:"logLevel"`
	Management Management `yaml:"management"`
}

// ConfigError wraps a fatal configuration-load failure (bad YAML, or a
// value later rejected by a consumer such as an unparseable regex).
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config: %s", e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// Load returns config with defaults overridden by path (if it exists) and
// then by environment variables. path is optional; a missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if err := loadFile(cfg, path); err != nil {
		return nil, &ConfigError{Err: err}
	}
	loadEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server:    "irc.example.net+6697",
		Nickname:  "maskwatch",
		Username:  "maskwatch",
		Realname:  "mask enforcement agent",
		Channel:   "#opers",
		History:   1000,
		Database:  "maskwatch.db",
		CliConnRe: `(?P<nick>\S+) \((?P<user>[^@]+)@(?P<host>\S+)\) \[(?P<real>.*)\] connected`,
		CliExitRe: `Client exiting: (?P<nick>\S+)`,
		CliNickRe: `(?P<old>\S+) changed nickname to (?P<new>\S+)`,
		BanCmd:    `KLINE {ban_time} {ban_user}@{ban_host} :{reason}`,
		Umode:     "+Fcn",
		LogLevel:  "info",
	}
}

func loadFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is an operator-supplied startup argument, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	log.Printf("[CONFIG] loaded %s", path)
	return nil
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("MASKWATCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MASKWATCH_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("MASKWATCH_METRICS_ADDR"); v != "" {
		cfg.Management.MetricsAddr = v
	}
}
