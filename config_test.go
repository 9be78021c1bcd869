package main

import (
	"strings"
	"testing"
	"time"
)

func setTestAuth(t *testing.T) {
	t.Helper()
	t.Setenv(keyTestMode, "1")
	t.Setenv(keyTestSecret, "secret")
	t.Setenv(keyConnStr, "")
}

func TestLoadConfigDefaults(t *testing.T) {
	setTestAuth(t)

	cfg, err := loadConfig(newViper())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ConnStr != "" || cfg.SQLitePath != "data/board.db" {
		t.Fatalf("expected sqlite fallback, got %+v", cfg)
	}
	if cfg.CacheTTL != 5*time.Minute || cfg.DeduperTTL != 24*time.Hour {
		t.Fatalf("unexpected ttls: %v %v", cfg.CacheTTL, cfg.DeduperTTL)
	}
	if cfg.MaxBatch != 100 || cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	setTestAuth(t)
	t.Setenv(keyDebug, "true")
	t.Setenv(keyConnStr, "UseDevelopmentStorage=true")
	t.Setenv(keyTasksTable, "T")
	t.Setenv(keyDeduperTTL, "1h")
	t.Setenv(keyMaxBatch, "10")
	t.Setenv(keyPort, "7071")

	cfg, err := loadConfig(newViper())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Debug || cfg.TasksTable != "T" || cfg.BoardsTable != "Boards" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.DeduperTTL != time.Hour || cfg.MaxBatch != 10 || cfg.ListenAddr != ":7071" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"no secret in test mode", map[string]string{keyTestSecret: ""}, keyTestSecret},
		{"no auth0", map[string]string{keyTestMode: "0"}, "Auth0"},
		{"bad ttl", map[string]string{keyCacheTTL: "-1s"}, keyCacheTTL},
		{"bad batch", map[string]string{keyMaxBatch: "0"}, keyMaxBatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setTestAuth(t)
			t.Setenv(keyAudience, "")
			t.Setenv(keyAuthDomain, "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig(newViper())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRedisOptions(t *testing.T) {
	opts := redisOptions("redis://:pw@localhost:6380/2")
	if opts.Addr != "localhost:6380" || opts.Password != "pw" || opts.DB != 2 {
		t.Fatalf("unexpected url options: %+v", opts)
	}

	opts = redisOptions("cache.example.net:6380,password=abc,ssl=True,abortConnect=False")
	if opts.Addr != "cache.example.net:6380" || opts.Password != "abc" || opts.TLSConfig == nil {
		t.Fatalf("unexpected azure options: %+v", opts)
	}
}
