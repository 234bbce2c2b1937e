package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"recording-pipeline/config"
	"recording-pipeline/constant"
	jobHandler "recording-pipeline/handler"
	"recording-pipeline/pkg/asr"
	"recording-pipeline/pkg/ffmpeg"
	"recording-pipeline/pkg/lease"
	"recording-pipeline/pkg/logger"
	"recording-pipeline/repository"
	"recording-pipeline/service"
)

const shutdownTimeout = 30 * time.Second

func RunHttp(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(SetupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	repo, err := repository.NewRepo(cfg.DB)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	if err := repo.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	dispatcher, startWorkers, closeQueue, err := setupQueue(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQueue()

	locker, closeLocker := newLocker(cfg)
	defer closeLocker()

	runner := ffmpeg.NewRunner(cfg.Encoder.Binary, cfg.Encoder.Timeout)
	asrClient := asr.NewClient(cfg.ASR.BaseURL,
		asr.WithLanguage(cfg.ASR.Language),
		asr.WithTimeouts(cfg.ASR.ConnectTimeout, cfg.ASR.RequestTimeout),
	)

	orchestrator := service.NewOrchestrator(repo, dispatcher, cfg)
	uploadService := service.NewUploadService(repo, orchestrator, locker, cfg)
	recordingService := service.NewRecordingService(repo, cfg)
	archiveService := service.NewArchiveService(repo, orchestrator, runner, cfg)

	serviceDeps := jobHandler.ServiceDependencies{
		TranscodeService:  service.NewTranscodeService(repo, orchestrator, runner, cfg),
		TranscribeService: service.NewTranscribeService(repo, runner, asrClient, cfg),
		ArchiveService:    archiveService,
	}

	g, gctx := errgroup.WithContext(ctx)
	startWorkers(gctx, g, serviceDeps)

	if err := orchestrator.Resume(gctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to resume interrupted recordings")
	}

	r := gin.New()
	r.Use(gin.Recovery(), jobHandler.RequestLogger(*zerolog.Ctx(ctx)))
	addHealth(r)
	jobHandler.NewRecordingHandler(recordingService, uploadService, archiveService).Register(r)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Str("addr", handler.Addr).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zerolog.Ctx(ctx).Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return handler.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newLocker(cfg *config.Config) (lease.Locker, func()) {
	if cfg.Upload.LockBackend != constant.LockBackendRedis {
		return lease.NewFileLocker(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return lease.NewRedisLocker(client, 0), func() { _ = client.Close() }
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

// SetupLogger installs the root logger described by the log section.
func SetupLogger(cfg *config.Config) context.Context {
	return logger.Setup(logger.Config{
		Service:     cfg.App.Name,
		Environment: cfg.App.Environment,
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		FilePath:    cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
	})
}
