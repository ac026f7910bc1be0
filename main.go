package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"drivebot/internal/api"
	"drivebot/internal/auth"
	"drivebot/internal/bot"
	"drivebot/internal/config"
	"drivebot/internal/conversation"
	"drivebot/internal/drive"
	"drivebot/internal/events"
	"drivebot/internal/handshake"
	"drivebot/internal/ingest"
	"drivebot/internal/logger"
	"drivebot/internal/redis"
	"drivebot/internal/selection"
	"drivebot/internal/session"
	"drivebot/internal/storage"
	"drivebot/internal/worker"
)

const module = "MAIN"

func main() {
	cfg, err := config.Load(os.Getenv("DRIVEBOT_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl := logger.NewZapLogger(cfg.BasicConfig.LogFilePath, cfg.IsProduction())
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbType := cfg.BasicConfig.DBType
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	defer rdb.Close()

	var mirror session.Mirror
	if rdb != nil {
		mirror = session.NewRedisMirror(rdb, zl)
	}
	sess := session.New(mirror, zl)
	if err := sess.Restore(ctx); err != nil {
		zl.Warn(module, "restore upload folder failed", map[string]interface{}{"error": err.Error()})
	}

	index := drive.NewIndex(db)

	client, tg, err := bot.NewClient(cfg.Telegram.BotToken, cfg.Telegram.APIEndpoint, cfg.Telegram.StorageChannel)
	if err != nil {
		log.Fatalf("connect to telegram: %v", err)
	}
	zl.Info(module, "authorized on telegram", map[string]interface{}{"username": tg.Self.UserName})

	bus := events.NewBus(zl)
	defer bus.Close()
	var sink events.Sink
	if cfg.Events.NatsURL != "" {
		fwd, err := events.NewForwarder(ctx, cfg.Events.NatsURL, cfg.Events.Stream)
		if err != nil {
			log.Fatalf("connect to nats: %v", err)
		}
		defer fwd.Close()
		sink = fwd
	}
	if err := events.StartAudit(ctx, bus, zl, sink); err != nil {
		log.Fatalf("start event audit: %v", err)
	}

	coordinator := conversation.NewCoordinator(client, zl)
	tokens := selection.NewStore(
		time.Duration(cfg.BasicConfig.SelectionTTL)*time.Minute,
		time.Duration(cfg.BasicConfig.SelectionSweep)*time.Second,
	)
	hs := handshake.New(handshake.Deps{
		Asker:     coordinator,
		Messenger: client,
		Index:     index,
		Session:   sess,
		Tokens:    tokens,
		Events:    bus,
		Logger:    zl,
		Timeout:   time.Duration(cfg.BasicConfig.AskTimeout) * time.Second,
	})
	ingestor := ingest.New(client, index, sess, bus, zl)

	dispatcher := worker.NewDispatcher(
		cfg.BasicConfig.MinWorkers,
		cfg.BasicConfig.MaxWorkers,
		cfg.BasicConfig.QueueSize,
		time.Duration(cfg.BasicConfig.WorkerIdleTimeout)*time.Minute,
		zl,
	)
	defer dispatcher.Stop()

	authService := auth.NewService(cfg.API.Key, cfg.Telegram.AdminIDs)

	var srv *http.Server
	if cfg.API.Address != "" {
		if cfg.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.Default()
		api.NewHandler(sess, index, authService, zl, zl).RegisterRoutes(router)
		srv = &http.Server{Addr: cfg.API.Address, Handler: router}
		go func() {
			zl.Info(module, "admin api listening", map[string]interface{}{"address": cfg.API.Address})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zl.Error(module, "admin api stopped", map[string]interface{}{"error": err.Error()})
			}
		}()
	}

	b := bot.New(bot.Deps{
		Transport:      client,
		Router:         coordinator,
		Handshake:      hs,
		Ingest:         ingestor,
		Session:        sess,
		Jobs:           dispatcher,
		Admins:         authService,
		Logger:         zl,
		StorageChannel: client.StorageChannel(),
		PollTimeout:    cfg.Telegram.PollTimeout,
	})
	if err := b.Run(ctx, tg); err != nil && !errors.Is(err, context.Canceled) {
		zl.Error(module, "bot stopped", map[string]interface{}{"error": err.Error()})
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zl.Warn(module, "admin api shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}
	zl.Info(module, "shutdown complete", nil)
}
