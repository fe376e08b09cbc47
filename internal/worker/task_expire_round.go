package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

type PayloadExpireRound struct {
	TimerID string `json:"timer_id"`
}

// DistributeTaskExpireRound schedules the end of a round. The timer ID doubles
// as the asynq task ID so the task can be deleted when the round is cancelled.
func (distributor *RedisTaskDistributor) DistributeTaskExpireRound(
	ctx context.Context,
	payload *PayloadExpireRound,
	opts ...asynq.Option,
) error {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TaskExpireRound, jsonPayload, append(opts, asynq.TaskID(payload.TimerID))...)
	info, err := distributor.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Info().
		Str("type", task.Type()).
		Str("task_id", payload.TimerID).
		Str("queue", info.Queue).
		Int("max_retry", info.MaxRetry).
		Time("process_at", info.NextProcessAt).
		Msg("round expiry task scheduled")

	return nil
}

func (processor *RedisTaskProcessor) ProcessTaskExpireRound(
	ctx context.Context,
	task *asynq.Task,
) error {
	var payload PayloadExpireRound
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", asynq.SkipRetry)
	}

	action, ok := processor.actions.take(payload.TimerID)
	if !ok {
		// Cancelled, already run, or scheduled by a previous process.
		log.Info().
			Str("task_id", payload.TimerID).
			Msg("no pending round for expiry task, skipping")
		return nil
	}

	action()

	log.Info().
		Str("task_id", payload.TimerID).
		Msg("round expiry task processed")

	return nil
}
