package worker

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
)

type TaskInspector interface {
	DeleteTask(ctx context.Context, queue, taskID string) error
	Close() error
}

type RedisTaskInspector struct {
	inspector *asynq.Inspector
}

func NewTaskInspector(redisOpt asynq.RedisClientOpt) TaskInspector {
	return &RedisTaskInspector{
		inspector: asynq.NewInspector(redisOpt),
	}
}

// DeleteTask removes a scheduled task. A task that already ran (or never
// existed) is not an error.
func (i *RedisTaskInspector) DeleteTask(ctx context.Context, queue, taskID string) error {
	err := i.inspector.DeleteTask(queue, taskID)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}

func (i *RedisTaskInspector) Close() error {
	return i.inspector.Close()
}
