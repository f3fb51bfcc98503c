package config

import "testing"

type sampleConfig struct {
	DBPath   string `env:"CONFIG_TEST_DB_PATH" envDefault:"data/obligations.db"`
	PageSize int    `env:"CONFIG_TEST_PAGE_SIZE" envDefault:"50"`
}

func TestParseEnvAppliesDefaults(t *testing.T) {
	var cfg sampleConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.DBPath != "data/obligations.db" {
		t.Fatalf("db path = %q, want default", cfg.DBPath)
	}
	if cfg.PageSize != 50 {
		t.Fatalf("page size = %d, want 50", cfg.PageSize)
	}
}

func TestParseEnvReadsEnvironment(t *testing.T) {
	t.Setenv("CONFIG_TEST_DB_PATH", "/tmp/test.db")
	t.Setenv("CONFIG_TEST_PAGE_SIZE", "25")

	var cfg sampleConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Fatalf("db path = %q, want /tmp/test.db", cfg.DBPath)
	}
	if cfg.PageSize != 25 {
		t.Fatalf("page size = %d, want 25", cfg.PageSize)
	}
}

func TestParseEnvRejectsMalformedValue(t *testing.T) {
	t.Setenv("CONFIG_TEST_PAGE_SIZE", "not-a-number")

	var cfg sampleConfig
	if err := ParseEnv(&cfg); err == nil {
		t.Fatal("expected parse error for malformed integer")
	}
}
