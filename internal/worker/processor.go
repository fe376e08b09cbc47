package worker

import (
	"context"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

/*
 This file contains code that will pick up the tasks from the Redis queue and process them.
*/

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

// actionTable maps timer IDs to the in-process callbacks they trigger.
// The task in Redis only carries the ID; the callback never leaves memory.
type actionTable struct {
	mu      sync.Mutex
	actions map[string]func()
}

func newActionTable() *actionTable {
	return &actionTable{actions: make(map[string]func())}
}

func (t *actionTable) put(timerID string, action func()) {
	t.mu.Lock()
	t.actions[timerID] = action
	t.mu.Unlock()
}

// take removes and returns the action, so each timer runs at most once.
func (t *actionTable) take(timerID string) (func(), bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	action, ok := t.actions[timerID]
	if ok {
		delete(t.actions, timerID)
	}
	return action, ok
}

func (t *actionTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.actions)
}

type RedisTaskProcessor struct {
	server  *asynq.Server
	actions *actionTable
}

func NewRedisTaskProcessor(redisOpt asynq.RedisClientOpt, actions *actionTable) *RedisTaskProcessor {
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				QueueCritical: 10,
				QueueDefault:  5,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error().Err(err).Str("type", task.Type()).
					Bytes("payload", task.Payload()).Msg("process task failed")
			}),
			Logger: NewLogger(),
		},
	)

	return &RedisTaskProcessor{
		server:  server,
		actions: actions,
	}
}

// Start registers the task handlers for the mux, attaches the mux to the asynq server, and starts the server.
func (processor *RedisTaskProcessor) Start() error {
	mux := asynq.NewServeMux()

	mux.HandleFunc(TaskExpireRound, processor.ProcessTaskExpireRound)

	return processor.server.Start(mux)
}

func (processor *RedisTaskProcessor) Shutdown() {
	processor.server.Shutdown()
}
