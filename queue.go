/*
Copyright 2024 Blaze Wallet Authors.

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

package schedvault

import (
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/blazewallet/schedvault/config"
	"github.com/blazewallet/schedvault/internal/redisdb"
)

// expiryQueue is what the service needs from the task queue: a way to
// schedule a one-shot expiry for a record at its hard cutoff.
type expiryQueue interface {
	queueScheduledTxExpiry(transactionID string, expiresAt time.Time) error
}

// Queue wraps the asynq client used to schedule per-record expiry tasks.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redisdb.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
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

// queueScheduledTxExpiry enqueues a task that fires at the record's hard
// cutoff. The task ID is the record ID, so re-scheduling the same record is
// a no-op rather than a duplicate. The periodic sweep remains the backstop
// when the queue is unavailable.
func (q *Queue) queueScheduledTxExpiry(transactionID string, expiresAt time.Time) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(transactionID)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(transactionID),
		asynq.Queue(cfg.Worker.ExpiryQueue),
		asynq.ProcessIn(time.Until(expiresAt)),
	}
	task := asynq.NewTask(cfg.Worker.ExpiryQueue, payload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued scheduled tx expiry: %+v", transactionID)
	return nil
}
