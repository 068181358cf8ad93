package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
database:
  host: localhost
  name: esg
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("port: got %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != DefaultDriver {
		t.Errorf("driver: got %q", cfg.Database.Driver)
	}
	if cfg.Engine.Timeout != DefaultEngineTimeout || cfg.Engine.MaxConcurrent != DefaultMaxConcurrent {
		t.Errorf("engine defaults: %+v", cfg.Engine)
	}
	if cfg.Engine.MaxOutputBytes != DefaultMaxOutputBytes {
		t.Errorf("maxOutputBytes: got %d", cfg.Engine.MaxOutputBytes)
	}
	if p := cfg.MetricPolicy(); !p.RejectUnknown || p.RequireAll {
		t.Errorf("metric policy defaults: %+v", p)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: 9090
  apiKeys: [k1, k2]
database:
  driver: mysql
  host: db
  port: 3307
  user: esg
  password: secret
  name: esg
engine:
  command: /usr/local/bin/esg-engine
  args: []
  timeout: 5s
  maxConcurrent: 2
  env: ["MODEL_PATH=/models/esg.pkl"]
metrics:
  rejectUnknown: false
  extraKeys: [scope3_tco2e]
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 || len(cfg.Server.APIKeys) != 2 {
		t.Errorf("server: %+v", cfg.Server)
	}
	if got := cfg.DSN(); got != "esg:secret@tcp(db:3307)/esg?parseTime=true&charset=utf8mb4&loc=UTC" {
		t.Errorf("dsn: %s", got)
	}
	rc := cfg.RunnerConfig()
	if rc.Command != "/usr/local/bin/esg-engine" || rc.Timeout != 5*time.Second || rc.MaxConcurrent != 2 || len(rc.Args) != 0 {
		t.Errorf("runner config: %+v", rc)
	}
	p := cfg.MetricPolicy()
	if p.RejectUnknown {
		t.Errorf("rejectUnknown should be false")
	}
	if problems := p.Check(map[string]any{"scope3_tco2e": 1.0}); len(problems) != 0 {
		t.Errorf("extra key rejected: %v", problems)
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := defaults()
	cfg.Database.Host = "pg"
	cfg.Database.User = "esg"
	cfg.Database.Password = "p@ss"
	cfg.Database.Name = "esg"
	got := cfg.PostgresDSN()
	want := "postgres://esg:p%40ss@pg:5432/esg?sslmode=disable"
	if got != want {
		t.Fatalf("dsn = %s, want %s", got, want)
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	_, err := Load(writeConfig(t, `
database:
  driver: sqlite
engine:
  command: ""
  maxConcurrent: 0
  env: [NOEQUALS]
`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"database.driver", "database.host", "engine.command", "engine.maxConcurrent", "NOEQUALS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

// startWatch runs Watch on path and returns the configs it delivers.
func startWatch(t *testing.T, path string) <-chan *Config {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(c *Config) {
			select {
			case changes <- c:
			default:
			}
		})
	}()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("watch: %v", err)
		}
	})
	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	return changes
}

// saveAtomically writes body to a sibling temp file and renames it over path.
func saveAtomically(t *testing.T, path, body string) {
	t.Helper()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}
}

func withPort(port string) string {
	return minimal + "server:\n  port: " + port + "\n"
}

// waitForPort drains reloads until one carries port.
func waitForPort(t *testing.T, changes <-chan *Config, port int) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Server.Port == port {
				return
			}
		case <-timeout:
			t.Fatalf("no reload with port %d observed", port)
		}
	}
}

func TestWatchReloads(t *testing.T) {
	path := writeConfig(t, minimal)
	changes := startWatch(t, path)

	if err := os.WriteFile(path, []byte(withPort("7070")), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	waitForPort(t, changes, 7070)
}

func TestWatchSurvivesAtomicSaves(t *testing.T) {
	path := writeConfig(t, minimal)
	changes := startWatch(t, path)

	saveAtomically(t, path, withPort("7071"))
	waitForPort(t, changes, 7071)

	saveAtomically(t, path, withPort("7072"))
	waitForPort(t, changes, 7072)

	if err := os.WriteFile(path, []byte(withPort("7073")), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	waitForPort(t, changes, 7073)
}

func TestWatchKeepsPreviousConfigOnInvalidReload(t *testing.T) {
	path := writeConfig(t, minimal)
	changes := startWatch(t, path)

	saveAtomically(t, path, "server:\n  port: 0\n")
	select {
	case c := <-changes:
		t.Fatalf("invalid config was delivered: %+v", c.Server)
	case <-time.After(300 * time.Millisecond):
	}

	saveAtomically(t, path, withPort("7074"))
	select {
	case c := <-changes:
		if c.Server.Port != 7074 {
			t.Fatalf("first delivered config has port %d, want 7074", c.Server.Port)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher stopped after an invalid reload")
	}
}

func TestWatchIgnoresSiblingFiles(t *testing.T) {
	path := writeConfig(t, minimal)
	changes := startWatch(t, path)

	other := filepath.Join(filepath.Dir(path), "other.yaml")
	if err := os.WriteFile(other, []byte(withPort("7075")), 0o600); err != nil {
		t.Fatalf("write sibling: %v", err)
	}
	select {
	case c := <-changes:
		t.Fatalf("sibling write triggered reload: port %d", c.Server.Port)
	case <-time.After(300 * time.Millisecond):
	}
}
