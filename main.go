package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/hoshino/questlog/server/api/rest"
	"github.com/hoshino/questlog/server/api/sse"
	"github.com/hoshino/questlog/server/audit"
	"github.com/hoshino/questlog/server/cache"
	"github.com/hoshino/questlog/server/config"
	dbadapter "github.com/hoshino/questlog/server/db"
	"github.com/hoshino/questlog/server/game/catalog"
	"github.com/hoshino/questlog/server/game/progression"
	mw "github.com/hoshino/questlog/server/middleware"
	"github.com/hoshino/questlog/server/model"
	"github.com/hoshino/questlog/server/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Game Services ----
	catalogSvc := catalog.NewService(db, c)
	progSvc := progression.NewService(db, catalogSvc)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	questH := apirest.NewQuestHandler(catalogSvc, auditSvc)
	charH := apirest.NewCharacterHandler(progSvc, auditSvc)
	progH := apirest.NewProgressionHandler(progSvc, auditSvc, pubsub)
	rankH := apirest.NewRankingHandler(db, c, logger)

	api := r.Group("/api")
	{
		questsG := api.Group("/quests")
		questsG.POST("", questH.Create)
		questsG.GET("", questH.List)

		charsG := api.Group("/characters")
		charsG.POST("", charH.Create)
		charsG.GET("", charH.List)
		charsG.GET("/:id/quests", progH.Status)
		charsG.GET("/:id/quests/available", progH.Available)
		charsG.POST("/:id/quests/:quest_id", progH.Assign)
		charsG.POST("/:id/complete", progH.Complete)

		rankG := api.Group("/ranking")
		rankG.GET("/xp", rankH.TopXP)
	}

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, apirest.EventChannel, logger)
	r.GET("/events", sseH.ServeSSE)

	// Ranking refresh keeps the leaderboard sorted set warm.
	sched.AddTicker("ranking_refresh", time.Duration(cfg.Game.RankingRefreshS)*time.Second, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := rankH.Refresh(ctx); err != nil {
			logger.Warn("ranking refresh failed", zap.Error(err))
		}
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
