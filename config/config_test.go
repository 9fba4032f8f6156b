package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DATASTORE_DRIVER", "DATASTORE_DSN", "STATE_PATH", "LOG_ROUTE_PREFIX", "DEMO_STEPS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.DataStoreDriver != "memory" || cfg.DataStoreDSN != "" {
		t.Fatalf("unexpected datastore defaults %q %q", cfg.DataStoreDriver, cfg.DataStoreDSN)
	}
	if cfg.LogRoutePrefix != "/log" || cfg.DemoSteps != 5 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadSQLiteDefaultsDSN(t *testing.T) {
	t.Setenv("DATASTORE_DRIVER", "SQLite")
	t.Setenv("DATASTORE_DSN", "")
	t.Setenv("STATE_PATH", "/tmp/state")

	cfg := Load()
	if cfg.DataStoreDriver != "sqlite" || cfg.DataStoreDSN != "/tmp/state/logstream.db" {
		t.Fatalf("unexpected datastore %q %q", cfg.DataStoreDriver, cfg.DataStoreDSN)
	}
}

func TestLoadParsesTypedValues(t *testing.T) {
	t.Setenv("JOB_LOG_TTL", "2h")
	t.Setenv("QUEUE_ENABLED", "yes")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("DEMO_STEP_INTERVAL", "not-a-duration")

	cfg := Load()
	if cfg.JobLogTTL != 2*time.Hour || !cfg.QueueEnabled || cfg.RedisDB != 3 {
		t.Fatalf("unexpected typed values %+v", cfg)
	}
	if cfg.DemoStepInterval != time.Second {
		t.Fatalf("expected default interval on invalid input, got %s", cfg.DemoStepInterval)
	}
}
