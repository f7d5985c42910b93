package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"award_chat/internal/api"
	"award_chat/internal/middleware"
	"award_chat/internal/models"
	"award_chat/internal/presence"
	"award_chat/internal/relay"
	"award_chat/internal/repository"
	"award_chat/internal/service"
	"award_chat/internal/storage"
	"award_chat/pkg/config"
	"award_chat/pkg/logger"
)

func main() {
	// 載入應用程式配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化分類目錄，driver 為 memory 時不連線資料庫
	db, err := storage.NewDatabase(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("failed to initialize database")
	}
	if db != nil {
		defer db.Close()
		if err := db.AutoMigrate(&models.Category{}, &models.SubRoom{}); err != nil {
			log.Fatal().Err(err).Msg("failed to auto migrate database")
		}
	}

	repos := repository.NewRepositories(db)
	seeds := lo.Map(cfg.Chat.Categories, func(c config.CategorySeed, _ int) models.CategorySeed {
		return models.CategorySeed{Name: c.Name, Rooms: c.Rooms}
	})
	if err := repos.Category.Seed(ctx, seeds); err != nil {
		log.Fatal().Err(err).Msg("failed to seed categories")
	}

	store, err := newPresenceStore(ctx, cfg.Presence)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Presence.Driver).Msg("failed to initialize presence store")
	}
	defer store.Close()

	rl, err := newRelay(cfg.Relay)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Relay.Driver).Msg("failed to initialize relay")
	}
	defer rl.Close()

	// 初始化 services，ChatState 在自己的 goroutine 中執行
	services := service.NewServices(cfg, repos, store, rl)
	stateCtx, stopState := context.WithCancel(context.Background())
	defer stopState()
	go services.State.Run(stateCtx)

	if err := rl.Subscribe(services.Chat.HandleRelay); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to relay")
	}

	// 設置 Gin 路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())
	api.SetupRoutes(r, services)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to run server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先停止接受新連線，被 hijack 的 WebSocket 連線不受 srv.Shutdown 管理，需要另外關閉
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	services.WebSocket.Shutdown()
}

func newPresenceStore(ctx context.Context, cfg config.PresenceConfig) (presence.Store, error) {
	if cfg.Driver == "redis" {
		return presence.NewRedisStore(ctx, cfg.RedisURL, cfg.Prefix)
	}
	return presence.NewMemoryStore(), nil
}

func newRelay(cfg config.RelayConfig) (relay.Relay, error) {
	if cfg.Driver == "nats" {
		return relay.NewNATSRelay(cfg.NATSURL, cfg.Subject)
	}
	return relay.NewLocal(), nil
}
