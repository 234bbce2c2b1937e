// Package asynqueue runs pipeline jobs on redis through asynq.
package asynqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"recording-pipeline/constant"
)

const taskPrefix = "recording:"

func TaskName(jobType constant.JobType) string {
	return taskPrefix + jobType.String()
}

// Dispatcher enqueues job messages as asynq tasks.
type Dispatcher struct {
	client   *asynq.Client
	maxRetry map[constant.JobType]int
}

// NewDispatcher takes the total attempts per job type; asynq counts retries
// after the first attempt.
func NewDispatcher(opt asynq.RedisClientOpt, maxTries map[constant.JobType]uint) *Dispatcher {
	retries := make(map[constant.JobType]int, len(maxTries))
	for jobType, tries := range maxTries {
		retries[jobType] = max(int(tries)-1, 0)
	}
	return &Dispatcher{client: asynq.NewClient(opt), maxRetry: retries}
}

func (d *Dispatcher) Dispatch(ctx context.Context, jobType constant.JobType, message any) error {
	b, err := json.Marshal(message)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, asynq.NewTask(TaskName(jobType), b), asynq.MaxRetry(d.maxRetry[jobType]))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	zerolog.Ctx(ctx).Debug().Str("task_id", info.ID).Str("job_type", jobType.String()).Msg("task enqueued")
	return nil
}

func (d *Dispatcher) Close() error {
	return d.client.Close()
}

// Handler matches the queue handlers shared with the RabbitMQ consumers.
type Handler[T any] func(ctx context.Context, body []byte, dependencies T) error

// Server runs registered handlers with the given concurrency.
type Server[T any] struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

func NewServer[T any](ctx context.Context, opt asynq.RedisClientOpt, concurrency int, dependencies T, handlers map[constant.JobType]Handler[T]) *Server[T] {
	logger := zerolog.Ctx(ctx)
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: max(concurrency, 1),
		BaseContext: func() context.Context { return ctx },
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})

	mux := asynq.NewServeMux()
	for jobType, handler := range handlers {
		handler := handler
		mux.HandleFunc(TaskName(jobType), func(ctx context.Context, t *asynq.Task) error {
			err := handler(ctx, t.Payload(), dependencies)
			var permanent *backoff.PermanentError
			if errors.As(err, &permanent) {
				return errors.Join(err, asynq.SkipRetry)
			}
			return err
		})
	}
	return &Server[T]{srv: srv, mux: mux}
}

// Run blocks until ctx is cancelled, then drains in-flight tasks.
func (s *Server[T]) Run(ctx context.Context) error {
	if err := s.srv.Start(s.mux); err != nil {
		return err
	}
	<-ctx.Done()
	s.srv.Shutdown()
	return nil
}
