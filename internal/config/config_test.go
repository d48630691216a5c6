package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Scheduler.TickInterval != 5*time.Second {
		t.Errorf("tick = %v", cfg.Scheduler.TickInterval)
	}
	if cfg.Scheduler.BatchSize != 100 || cfg.Scheduler.Workers != 20 || cfg.Scheduler.QueueCapacity != 100 {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.ConfigMissingBackoff != 300*time.Second || cfg.Scheduler.ErrorBackoff != time.Minute {
		t.Errorf("backoffs = %v %v", cfg.Scheduler.ConfigMissingBackoff, cfg.Scheduler.ErrorBackoff)
	}
	if cfg.Probe.RetryAttempts != 2 || cfg.Probe.RetryBaseDelay != 500*time.Millisecond {
		t.Errorf("probe = %+v", cfg.Probe)
	}
	if cfg.Cache.Window != 30*time.Second {
		t.Errorf("cache window = %v", cfg.Cache.Window)
	}
	if cfg.Batcher.BatchSize != 50 || cfg.Batcher.FlushInterval != 10*time.Second {
		t.Errorf("batcher = %+v", cfg.Batcher)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9000
database:
  driver: sqlite
  sqlite_path: /tmp/pings.db
scheduler:
  store: memory
  batch_size: 10
batcher:
  flush_interval: 2s
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PINGTOWER_SCHEDULER_WORKERS", "4")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.SQLitePath != "/tmp/pings.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Scheduler.BatchSize != 10 || cfg.Scheduler.Workers != 4 {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Batcher.FlushInterval != 2*time.Second {
		t.Errorf("flush interval = %v", cfg.Batcher.FlushInterval)
	}
	if cfg.Events.Enabled {
		t.Error("events must be disabled with the memory store")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad port", "server:\n  port: 70000\n", "invalid server port"},
		{"bad driver", "database:\n  driver: mysql\n", "unsupported database driver"},
		{"bad store", "scheduler:\n  store: etcd\n", "unsupported scheduler store"},
		{"zero batch", "batcher:\n  batch_size: 0\n", "batcher batch_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(tt.yaml), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(dir)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestDSNAndRedisOptions(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "pings", SSLMode: "disable"}
	if got := d.GetDSN(); got != "host=db port=5432 user=u password=p dbname=pings sslmode=disable" {
		t.Errorf("dsn = %q", got)
	}

	r := RedisConfig{Addr: "cache:6379", DB: 2}
	opts := r.GetRedisOptions()
	if opts.Addr != "cache:6379" || opts.DB != 2 || !opts.DisableIdentity {
		t.Errorf("options = %+v", opts)
	}
}
