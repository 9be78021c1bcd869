package main

import (
	"fmt"
	"io"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/evercrisp-ai/Ben-OS-sub001/api"
	"github.com/evercrisp-ai/Ben-OS-sub001/storage"
	"github.com/evercrisp-ai/Ben-OS-sub001/tasks"
)

func main() {
	cfg, err := loadConfig(newViper())
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()
	logger.SetLevel(log.GetLevel())

	store, closer, err := openStore(cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closer.Close()

	var deduper api.Deduper
	if cfg.RedisConn != "" {
		rc := redis.NewClient(redisOptions(cfg.RedisConn))
		defer rc.Close()
		store = storage.NewCache(store, rc, cfg.CacheTTL)
		deduper = api.NewRedisDeduper(rc, cfg.DeduperTTL)
	} else {
		log.Warn("REDIS_CONNECTION_STRING not set; board cache and bulk idempotency are disabled")
	}

	opts := []tasks.Option{tasks.WithLogger(logger), tasks.WithMaxBatch(cfg.MaxBatch)}
	if cfg.ActivityQueue != "" && cfg.ConnStr != "" {
		sink, err := storage.NewQueueActivity(cfg.ConnStr, cfg.ActivityQueue)
		if err != nil {
			log.Fatalf("activity queue: %v", err)
		}
		opts = append(opts, tasks.WithActivitySink(sink))
	}
	svc := tasks.New(store, opts...)

	auth, err := newAuth(cfg)
	if err != nil {
		log.Fatal(err)
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding, "Idempotency-Key"},
	}))
	api.Register(e, svc, auth, deduper, logger)

	e.Logger.Fatal(e.Start(cfg.ListenAddr))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openStore(cfg config) (tasks.Store, io.Closer, error) {
	if cfg.ConnStr != "" {
		t, err := storage.NewTables(cfg.ConnStr, cfg.TasksTable, cfg.BoardsTable)
		if err != nil {
			return nil, nil, err
		}
		return t, nopCloser{}, nil
	}
	log.Infof("STORAGE_CONNECTION_STRING not set; using sqlite at %s", cfg.SQLitePath)
	s, err := storage.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return s, s, nil
}

func newAuth(cfg config) (*api.Auth, error) {
	if cfg.TestMode {
		return api.NewAuth(nil, cfg.Audience, "", api.WithSharedSecret([]byte(cfg.TestSecret))), nil
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.AuthDomain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, cfg.Audience, "https://"+cfg.AuthDomain+"/"), nil
}
