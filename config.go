package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

const (
	keyDebug         = "DEBUG"
	keyConnStr       = "STORAGE_CONNECTION_STRING"
	keyTasksTable    = "TASKS_TABLE"
	keyBoardsTable   = "BOARDS_TABLE"
	keyActivityQueue = "ACTIVITY_QUEUE"
	keySQLitePath    = "SQLITE_PATH"
	keyRedisConn     = "REDIS_CONNECTION_STRING"
	keyCacheTTL      = "CACHE_TTL"
	keyDeduperTTL    = "DEDUPER_TTL"
	keyMaxBatch      = "BULK_MAX_OPERATIONS"
	keyTestMode      = "AUTH0_TEST_MODE"
	keyTestSecret    = "TEST_JWT_SECRET"
	keyAudience      = "AUTH0_AUDIENCE"
	keyAuthDomain    = "AUTH0_DOMAIN"
	keyPort          = "FUNCTIONS_CUSTOMHANDLER_PORT"
)

type config struct {
	Debug bool

	ConnStr       string
	TasksTable    string
	BoardsTable   string
	ActivityQueue string
	SQLitePath    string

	RedisConn  string
	CacheTTL   time.Duration
	DeduperTTL time.Duration
	MaxBatch   int

	TestMode   bool
	TestSecret string
	Audience   string
	AuthDomain string
	ListenAddr string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault(keyTasksTable, "Tasks")
	v.SetDefault(keyBoardsTable, "Boards")
	v.SetDefault(keySQLitePath, "data/board.db")
	v.SetDefault(keyCacheTTL, "5m")
	v.SetDefault(keyDeduperTTL, "24h")
	v.SetDefault(keyMaxBatch, domain.MaxBulkOperations)
	v.SetDefault(keyPort, "8080")
	return v
}

// loadConfig reads the server settings from the environment. Azure Table
// Storage is used when a connection string is set, otherwise a local SQLite
// file.
func loadConfig(v *viper.Viper) (config, error) {
	cfg := config{
		Debug:         v.GetBool(keyDebug),
		ConnStr:       v.GetString(keyConnStr),
		TasksTable:    v.GetString(keyTasksTable),
		BoardsTable:   v.GetString(keyBoardsTable),
		ActivityQueue: v.GetString(keyActivityQueue),
		SQLitePath:    v.GetString(keySQLitePath),
		RedisConn:     v.GetString(keyRedisConn),
		CacheTTL:      v.GetDuration(keyCacheTTL),
		DeduperTTL:    v.GetDuration(keyDeduperTTL),
		MaxBatch:      v.GetInt(keyMaxBatch),
		TestMode:      v.GetString(keyTestMode) == "1",
		TestSecret:    v.GetString(keyTestSecret),
		Audience:      v.GetString(keyAudience),
		AuthDomain:    v.GetString(keyAuthDomain),
		ListenAddr:    ":" + v.GetString(keyPort),
	}

	if cfg.ConnStr == "" && cfg.SQLitePath == "" {
		return cfg, errors.New("missing storage config")
	}
	if cfg.ConnStr != "" && (cfg.TasksTable == "" || cfg.BoardsTable == "") {
		return cfg, errors.New("missing storage config")
	}
	if cfg.CacheTTL <= 0 {
		return cfg, fmt.Errorf("invalid %s: must be greater than zero", keyCacheTTL)
	}
	if cfg.DeduperTTL <= 0 {
		return cfg, fmt.Errorf("invalid %s: must be greater than zero", keyDeduperTTL)
	}
	if cfg.MaxBatch <= 0 {
		return cfg, fmt.Errorf("invalid %s: must be greater than zero", keyMaxBatch)
	}
	if cfg.TestMode {
		if cfg.TestSecret == "" {
			return cfg, fmt.Errorf("%s requires %s", keyTestMode, keyTestSecret)
		}
	} else if cfg.Audience == "" || cfg.AuthDomain == "" {
		return cfg, errors.New("missing Auth0 config")
	}
	return cfg, nil
}

// redisOptions accepts a redis:// URL or the Azure "host:port,password=...,ssl=True" form.
func redisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
