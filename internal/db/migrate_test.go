package db

import (
	"testing"

	"github.com/driftwatch/driftwatch/internal/config"
)

func TestRunMigrateUnknownCommand(t *testing.T) {
	cfg := config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "driftwatch",
		Password: "secret",
		Database: "driftwatch",
		SSLMode:  "disable",
	}
	err := RunMigrate(nil, cfg, nil, "invalid", nil)
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestRunMigrateForceRequiresVersion(t *testing.T) {
	cfg := config.PostgresConfig{Host: "localhost", Port: 5432}
	err := RunMigrate(nil, cfg, nil, "force", nil)
	if err == nil {
		t.Fatal("expected error for force without version")
	}
}
