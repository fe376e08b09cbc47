package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/katatrina/auction-house/internal/scheduler"
	"github.com/katatrina/auction-house/internal/util"
	"github.com/rs/zerolog/log"
)

const enqueueTimeout = 5 * time.Second

var _ scheduler.RoundScheduler = (*RoundScheduler)(nil)

// RoundScheduler keeps round timers as delayed asynq tasks in Redis.
type RoundScheduler struct {
	distributor TaskDistributor
	inspector   TaskInspector
	processor   *RedisTaskProcessor
	actions     *actionTable
}

// NewRoundScheduler connects to Redis and starts processing expiry tasks.
func NewRoundScheduler(redisOpt asynq.RedisClientOpt) (*RoundScheduler, error) {
	actions := newActionTable()
	processor := NewRedisTaskProcessor(redisOpt, actions)
	if err := processor.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task processor: %w", err)
	}

	log.Info().Str("address", redisOpt.Addr).Msg("task processor started")

	return &RoundScheduler{
		distributor: NewTaskDistributor(redisOpt),
		inspector:   NewTaskInspector(redisOpt),
		processor:   processor,
		actions:     actions,
	}, nil
}

func (s *RoundScheduler) ScheduleAfter(delay time.Duration, action func()) (scheduler.Token, error) {
	timerID := util.GenerateTaskID(TaskExpireRound)
	s.actions.put(timerID, action)

	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()

	opts := []asynq.Option{
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(0),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	err := s.distributor.DistributeTaskExpireRound(ctx, &PayloadExpireRound{TimerID: timerID}, opts...)
	if err != nil {
		s.actions.take(timerID)
		return "", err
	}

	return scheduler.Token(timerID), nil
}

func (s *RoundScheduler) Cancel(token scheduler.Token) {
	timerID := string(token)
	if _, ok := s.actions.take(timerID); !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()

	if err := s.inspector.DeleteTask(ctx, QueueCritical, timerID); err != nil {
		// The action is gone already; the task will find nothing to run.
		log.Warn().Err(err).Str("task_id", timerID).Msg("failed to delete round expiry task")
	}
}

func (s *RoundScheduler) Shutdown() error {
	if s.processor != nil {
		s.processor.Shutdown()
	}

	var firstErr error
	for _, closer := range []interface{ Close() error }{s.distributor, s.inspector} {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
