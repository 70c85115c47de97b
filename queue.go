/*
Copyright 2024 Carebridge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/hibiken/asynq"

	"github.com/carebridge/settlement/config"
	redis_db "github.com/carebridge/settlement/internal/redis-db"
)

// Queue represents a queue for handling reconciliation events and webhook
// deliveries.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueReconciliationEvent enqueues a transfer processor event for
// asynchronous reconciliation. The task ID is derived from the idempotency
// key and event type, so a replayed delivery of the same event collapses into
// the task already queued.
func (q *Queue) EnqueueReconciliationEvent(ctx context.Context, event TransferEvent) error {
	ctx, span := tracer.Start(ctx, "Adding Transfer Event To Redis Queue")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(event.IdempotencyKey + ":" + event.Type),
		asynq.Queue(cfg.Queue.ReconciliationQueue),
		asynq.MaxRetry(5),
	}
	task := asynq.NewTask(cfg.Queue.ReconciliationQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			log.Printf(" [*] Transfer event already queued: %s", event.IdempotencyKey)
			return nil
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued transfer event: %s %s", event.Type, event.IdempotencyKey)
	return nil
}
