package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"meetscribe/config"
	"meetscribe/internal/knowledge"
	"meetscribe/internal/provider/gemini"
	"meetscribe/internal/provider/huggingface"
	"meetscribe/internal/provider/openai"
	"meetscribe/internal/runtime"
	"meetscribe/internal/store"
	"meetscribe/internal/summarizer"
	"meetscribe/internal/telemetry"
)

// Run wires everything together and serves the API until the process ends.
func Run(cfg *config.Config, addr string) error {
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
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	tel := telemetry.New()
	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(tel.Handler()))
	registerDocs(e)

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		log.Printf("migrations: %v", err)
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	if cfg.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY not configured")
	}
	primary := openai.New(cfg.Providers.OpenAI)
	secondary := gemini.New(cfg.Providers.Gemini)
	tertiary := huggingface.New(cfg.Providers.HuggingFace)

	summaries := summarizer.New(primary, secondary, tertiary, cfg.Summarizer, cfg.Providers.OpenAI.ChunkChars, tel)
	writer := knowledge.NewWriter(st, primary, tel)
	searcher := knowledge.NewSearcher(st, primary, tel)

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: secret}
	auth.Register(api.Group("/auth"))

	me := api.Group("/me")
	me.Use(runtime.EchoAuthMiddleware(secret))
	me.GET("", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"user_id": c.Get("user_id").(string)})
	})

	mh := &MeetingsHandler{Store: st, Summaries: summaries, Writer: writer}
	mh.Register(api.Group("/meetings"), secret)
	mh.RegisterActionItems(api.Group("/action-items"), secret)

	kh := &KnowledgeHandler{Store: st, Searcher: searcher}
	kh.Register(api.Group("/knowledge"), secret)

	if cfg.Reminders.Enabled {
		if cfg.Storage.Redis.Host == "" || cfg.Storage.Redis.Port == "" {
			return fmt.Errorf("redis not configured (storage.redis.host/port)")
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, err)
		}
		sched := &Scheduler{Store: st, Rdb: rdb, CronSpec: cfg.Reminders.CronSpec, Stop: make(chan struct{})}
		sched.Start()
	}

	if addr == "" {
		addr = cfg.General.Listen
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":8080"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
