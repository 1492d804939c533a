package postgres

import (
	"strings"
	"testing"

	gormlogger "gorm.io/gorm/logger"

	"rpg-narrative-api/internal/config"
)

func TestDSNDefaultsSSLMode(t *testing.T) {
	cfg := &config.PostgresConfig{Host: "db", Port: 5432, User: "rpg", Password: "pw", Database: "campaigns"}
	got := dsn(cfg)
	if !strings.Contains(got, "sslmode=disable") {
		t.Fatalf("dsn = %q, want sslmode=disable", got)
	}
	if !strings.Contains(got, "host=db port=5432") {
		t.Fatalf("dsn = %q, missing host/port", got)
	}

	cfg.SSLMode = "require"
	if got := dsn(cfg); !strings.Contains(got, "sslmode=require") {
		t.Fatalf("dsn = %q, want sslmode=require", got)
	}
}

func TestGormLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"info", gormlogger.Info},
		{"warn", gormlogger.Warn},
		{"", gormlogger.Warn},
	}
	for _, tt := range tests {
		if got := gormLogLevel(tt.in); got != tt.want {
			t.Errorf("gormLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestGormLoggerLogModeDoesNotMutate(t *testing.T) {
	base := newGormLogger("warn", 0)
	quiet := base.LogMode(gormlogger.Silent).(*gormLogger)
	if base.level != gormlogger.Warn {
		t.Fatalf("base level changed to %v", base.level)
	}
	if quiet.level != gormlogger.Silent {
		t.Fatalf("clone level = %v, want silent", quiet.level)
	}
}
