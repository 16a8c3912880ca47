package config

import (
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.Nickname != "maskwatch" {
		t.Errorf("Nickname: got %s", cfg.Nickname)
	}
	if cfg.History != 1000 {
		t.Errorf("History: got %d, want 1000", cfg.History)
	}
	if cfg.Database != "maskwatch.db" {
		t.Errorf("Database: got %s", cfg.Database)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel: got %s", cfg.LogLevel)
	}
	if cfg.CliConnRe == "" || cfg.CliExitRe == "" || cfg.CliNickRe == "" {
		t.Error("lifecycle regexes must have defaults")
	}
	if cfg.BanCmd == "" {
		t.Error("BanCmd must have a default template")
	}
}

func TestLoadEnv_LogLevel(t *testing.T) {
	t.Setenv("MASKWATCH_LOG_LEVEL", "debug")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %s, want debug", cfg.LogLevel)
	}
}

func TestLoadEnv_Database(t *testing.T) {
	t.Setenv("MASKWATCH_DATABASE", "/var/lib/maskwatch/other.db")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.Database != "/var/lib/maskwatch/other.db" {
		t.Errorf("Database: got %s", cfg.Database)
	}
}

func TestLoadEnv_MetricsAddr(t *testing.T) {
	t.Setenv("MASKWATCH_METRICS_ADDR", "127.0.0.1:9100")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.Management.MetricsAddr != "127.0.0.1:9100" {
		t.Errorf("Management.MetricsAddr: got %s", cfg.Management.MetricsAddr)
	}
}

func TestLoadFile_ValidYAML(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "maskwatch-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.WriteString(`
server: "irc.libera.chat+6697"
nickname: "watchbot"
channel: "#watch"
history: 500
oper:
  name: watchbot
  pass: hunter2
sasl:
  username: watchbot
  password: hunter2
`)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	cfg := defaults()
	if err := loadFile(cfg, f.Name()); err != nil {
		t.Fatal(err)
	}
	if cfg.Server != "irc.libera.chat+6697" {
		t.Errorf("Server: got %s", cfg.Server)
	}
	if cfg.Nickname != "watchbot" {
		t.Errorf("Nickname: got %s", cfg.Nickname)
	}
	if cfg.History != 500 {
		t.Errorf("History: got %d, want 500", cfg.History)
	}
	if cfg.Oper.Name != "watchbot" || cfg.Oper.Pass != "hunter2" {
		t.Errorf("Oper: got %+v", cfg.Oper)
	}
	if cfg.SASL.Username != "watchbot" {
		t.Errorf("SASL.Username: got %s", cfg.SASL.Username)
	}
}

func TestLoadFile_Missing_IsNoOp(t *testing.T) {
	cfg := defaults()
	if err := loadFile(cfg, "/nonexistent/path/maskwatch.yaml"); err != nil {
		t.Fatal(err)
	}
	if cfg.Nickname != "maskwatch" {
		t.Errorf("Nickname changed unexpectedly: %s", cfg.Nickname)
	}
}

func TestLoadFile_EmptyPath_IsNoOp(t *testing.T) {
	cfg := defaults()
	if err := loadFile(cfg, ""); err != nil {
		t.Fatal(err)
	}
	if cfg.Nickname != "maskwatch" {
		t.Errorf("Nickname changed unexpectedly: %s", cfg.Nickname)
	}
}

func TestLoadFile_InvalidYAML_ReturnsError(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "maskwatch-bad-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("server: [this is not\n  valid yaml"); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	cfg := defaults()
	if err := loadFile(cfg, f.Name()); err == nil {
		t.Error("want error for malformed YAML")
	}
}

func TestLoad_ReturnsNonNil(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg == nil {
		t.Fatal("Load() returned nil")
	}
	if cfg.History <= 0 {
		t.Errorf("History should be positive, got %d", cfg.History)
	}
}

func TestLoad_BadFileSurfacesConfigError(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "maskwatch-bad-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("server: [unterminated"); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	_, err = Load(f.Name())
	if err == nil {
		t.Fatal("want ConfigError for malformed YAML")
	}
	if _, ok := err.(*ConfigError); !ok {
		t.Errorf("got %T, want *ConfigError", err)
	}
}
