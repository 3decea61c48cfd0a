package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/golang-migrate/migrate/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/reviewly/reviewly/config"
	"github.com/reviewly/reviewly/internal/search"
	"github.com/reviewly/reviewly/internal/store"
	"github.com/reviewly/reviewly/internal/stream"
)

func Run(cfg *appconfig.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate: %w", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	secret := cfg.General.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (general.jwt_secret)")
	}

	// relevance indexes: full load now, cron rebuilds in the background
	ixLogger := log.New(log.Writer(), "[INDEX] ", log.LstdFlags)
	indexer, err := search.NewIndexer(st, cfg.Search.RebuildCron, ixLogger)
	if err != nil {
		return err
	}
	if err := indexer.Rebuild(ctx); err != nil {
		return fmt.Errorf("initial index build: %w", err)
	}
	go func() { _ = indexer.Run(ctx) }()
	searchSvc := search.NewService(indexer, cfg.Search.OverFetch, ixLogger)

	// comment fan-out: registry + dispatcher, optional redis relay between replicas
	fanLogger := log.New(log.Writer(), "[FANOUT] ", log.LstdFlags)
	registry := stream.NewRegistry()
	dispatcher := stream.NewDispatcher(registry, fanLogger)
	if cfg.Events.RelayEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Pass,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
		relay := stream.NewRelay(rdb, cfg.Events.RelayChannel, dispatcher, fanLogger)
		dispatcher.SetRelay(relay)
		go func() { _ = relay.Run(ctx) }()
	}

	api := e.Group("/api")

	ah := &AuthHandler{Store: st, Secret: []byte(secret), SecureCookies: cfg.General.Env == "prod"}
	ah.Register(api.Group("/auth"))

	rh := &ReviewsHandler{
		Store:      st,
		Indexer:    indexer,
		Registry:   registry,
		Dispatcher: dispatcher,
		Buffer:     cfg.Events.SubscriberBuffer,
		Secret:     []byte(secret),
	}
	rh.Register(api.Group("/reviews"))

	uh := &UsersHandler{Store: st, Secret: []byte(secret)}
	uh.Register(api.Group("/users"))

	th := &TagsHandler{Store: st}
	th.Register(api.Group("/tags"))

	sh := &SearchHandler{Svc: searchSvc}
	sh.Register(api.Group("/search"))

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":10002"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
