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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/blazewallet/schedvault/config"
	"github.com/blazewallet/schedvault/internal/redisdb"
)

const (
	taskExecuteDue   = "sched:execute"
	taskSweepExpired = "sched:sweep"
)

// processDueTransactions runs one execution pass from the periodic task.
// Claiming is single-flight per pass; concurrency for this handler stays
// at 1 so decrypted material from at most one record is in memory at a
// time.
func (b *schedvaultInstance) processDueTransactions(ctx context.Context, _ *asynq.Task) error {
	ctx, span := otel.Tracer("scheduledtx.worker").Start(ctx, "Execute Due Transactions From Periodic Task")
	defer span.End()

	if err := b.service.ProcessDueScheduledTransactions(ctx); err != nil {
		logrus.Errorf("execution pass failed: %v", err)
		return err
	}
	return nil
}

// sweepExpiredTransactions expires overdue pending records from the
// periodic sweep task.
func (b *schedvaultInstance) sweepExpiredTransactions(ctx context.Context, _ *asynq.Task) error {
	_, err := b.service.SweepExpiredScheduledTransactions(ctx)
	return err
}

// processScheduledTxExpiry handles the per-record expiry task enqueued at
// schedule time for the record's hard cutoff.
func (b *schedvaultInstance) processScheduledTxExpiry(ctx context.Context, t *asynq.Task) error {
	var txnID string
	if err := json.Unmarshal(t.Payload(), &txnID); err != nil {
		logrus.Error(err)
		return err
	}

	if err := b.service.ExpireScheduledTransaction(ctx, txnID); err != nil {
		return err
	}

	logrus.Printf(" [*] Scheduled Transaction Expiry Processed %s", txnID)
	return nil
}

func initializeQueues(cfg *config.Configuration) map[string]int {
	queues := make(map[string]int)
	queues[taskExecuteDue] = 1
	queues[taskSweepExpired] = 1
	queues[cfg.Worker.ExpiryQueue] = 3
	return queues
}

func redisClientOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redisdb.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("error parsing Redis URL: %v", err)
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	opt, err := redisClientOpt(conf)
	if err != nil {
		return nil, err
	}

	return asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

// initializePeriodicScheduler registers the cron-driven tasks: the
// execution pass and the expiry sweep.
func initializePeriodicScheduler(conf *config.Configuration) (*asynq.Scheduler, error) {
	opt, err := redisClientOpt(conf)
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(opt, nil)
	if _, err := scheduler.Register(conf.Worker.ExecuteCronSpec, asynq.NewTask(taskExecuteDue, nil), asynq.Queue(taskExecuteDue)); err != nil {
		return nil, err
	}
	if _, err := scheduler.Register(conf.Worker.SweepCronSpec, asynq.NewTask(taskSweepExpired, nil), asynq.Queue(taskSweepExpired)); err != nil {
		return nil, err
	}
	return scheduler, nil
}

func initializeTaskHandlers(b *schedvaultInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(taskExecuteDue, b.processDueTransactions)
	mux.HandleFunc(taskSweepExpired, b.sweepExpiredTransactions)
	mux.HandleFunc(b.cnf.Worker.ExpiryQueue, b.processScheduledTxExpiry)
}

// workerCommands defines the "workers" command. This is the only process
// constructed with a KMS service that can unwrap envelope keys.
func workerCommands(b *schedvaultInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start schedvault workers",
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			queues := initializeQueues(conf)

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			scheduler, err := initializePeriodicScheduler(conf)
			if err != nil {
				log.Fatal(err)
			}
			go func() {
				if err := scheduler.Run(); err != nil {
					log.Fatalf("Error running periodic scheduler: %v", err)
				}
			}()

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			if err := srv.Run(mux); err != nil {
				log.Fatalf("Error running worker server: %v", err)
			}
		},
	}

	return cmd
}
