package server

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"recording-pipeline/config"
	"recording-pipeline/constant"
	jobHandler "recording-pipeline/handler"
	"recording-pipeline/pkg/asynqueue"
	"recording-pipeline/pkg/rabbitmq"
	"recording-pipeline/service"
)

// workerPool starts the consumers that run queued jobs.
type workerPool func(ctx context.Context, g *errgroup.Group, deps jobHandler.ServiceDependencies)

func queueSpecs(cfg *config.Config) map[constant.JobType]rabbitmq.QueueSpec {
	exchange := cfg.Queue.ExchangeName
	return map[constant.JobType]rabbitmq.QueueSpec{
		constant.JobTypeTranscode: {
			Exchange:   exchange,
			Queue:      "recording_transcode",
			RoutingKey: "recording.transcode",
			MaxTries:   cfg.Jobs.TranscodeMaxTries,
		},
		constant.JobTypeTranscribe: {
			Exchange:   exchange,
			Queue:      "recording_transcribe",
			RoutingKey: "recording.transcribe",
			MaxTries:   cfg.Jobs.TranscribeMaxTries,
		},
		constant.JobTypeArchive: {
			Exchange:   exchange,
			Queue:      "recording_archive",
			RoutingKey: "recording.archive",
			MaxTries:   1,
		},
	}
}

func maxTries(cfg *config.Config) map[constant.JobType]uint {
	return map[constant.JobType]uint{
		constant.JobTypeTranscode:  cfg.Jobs.TranscodeMaxTries,
		constant.JobTypeTranscribe: cfg.Jobs.TranscribeMaxTries,
		constant.JobTypeArchive:    1,
	}
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
}

// setupQueue connects the configured job driver and returns its dispatcher,
// the worker pool to start once services exist, and a close function.
func setupQueue(ctx context.Context, cfg *config.Config) (service.Dispatcher, workerPool, func(), error) {
	switch cfg.Jobs.Driver {
	case constant.QueueDriverAsynq:
		dispatcher := asynqueue.NewDispatcher(redisOpt(cfg), maxTries(cfg))
		pool := func(ctx context.Context, g *errgroup.Group, deps jobHandler.ServiceDependencies) {
			srv := asynqueue.NewServer(ctx, redisOpt(cfg), cfg.Server.Workers, deps, map[constant.JobType]asynqueue.Handler[jobHandler.ServiceDependencies]{
				constant.JobTypeTranscode:  jobHandler.TranscodeHandler,
				constant.JobTypeTranscribe: jobHandler.TranscribeHandler,
				constant.JobTypeArchive:    jobHandler.ArchiveHandler,
			})
			g.Go(func() error { return srv.Run(ctx) })
		}
		closer := func() {
			if err := dispatcher.Close(); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("failed to close asynq client")
			}
		}
		return dispatcher, pool, closer, nil

	case constant.QueueDriverRabbitMQ:
		conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		specs := queueSpecs(cfg)
		publisher, err := rabbitmq.NewPublisher(conn, cfg.Queue, specs)
		if err != nil {
			_ = conn.Close()
			return nil, nil, nil, fmt.Errorf("declare queues: %w", err)
		}

		handlers := map[constant.JobType]rabbitmq.Handler[jobHandler.ServiceDependencies]{
			constant.JobTypeTranscode:  jobHandler.TranscodeHandler,
			constant.JobTypeTranscribe: jobHandler.TranscribeHandler,
			constant.JobTypeArchive:    jobHandler.ArchiveHandler,
		}
		pool := func(ctx context.Context, g *errgroup.Group, deps jobHandler.ServiceDependencies) {
			for jobType, spec := range specs {
				consumer := rabbitmq.NewConsumer(conn, cfg.Queue, spec, cfg.Server.Workers, handlers[jobType])
				g.Go(func() error {
					err := consumer.Consume(ctx, deps)
					if err != nil && ctx.Err() == nil {
						zerolog.Ctx(ctx).Error().Err(err).Str("job_type", jobType.String()).Msg("consumer error")
						return err
					}
					return nil
				})
			}
		}
		closer := func() {
			if !conn.IsClosed() {
				if err := conn.Close(); err != nil {
					zerolog.Ctx(ctx).Error().Err(err).Msg("failed to close rabbitmq connection")
				}
			}
		}
		return publisher, pool, closer, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown jobs.driver %q", cfg.Jobs.Driver)
}
