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
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/blazewallet/schedvault/config"
	"github.com/blazewallet/schedvault/database"
	"github.com/blazewallet/schedvault/internal/apierror"
	"github.com/blazewallet/schedvault/model"
)

// Schedule validates and persists a new scheduled transaction. The bundle
// must already be sealed client-side against the current wrapping key; this
// service never sees the plaintext phrase on the way in.
func (s *Schedvault) Schedule(ctx context.Context, txn *model.ScheduledTransaction) (*model.ScheduledTransaction, error) {
	ctx, span := otel.Tracer("scheduledtx.service").Start(ctx, "Scheduling transaction")
	defer span.End()

	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	txn.ApplyDefaults(cnf.Worker.DefaultMaxWaitHours)
	if txn.EncryptedAuth != nil && txn.EncryptedAuth.ExpiresAt.IsZero() {
		// the bundle never outlives the record's execution window
		txn.EncryptedAuth.ExpiresAt = txn.ExpiresAt
	}
	if err := txn.Validate(time.Now()); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}

	txn.ScheduledTxID = database.GenerateUUIDWithSuffix("stx")
	txn.Status = model.StatusPending
	txn.CreatedAt = time.Now()
	txn.EncryptedAuth.EncryptedAt = txn.CreatedAt
	if txn.EncryptedAuth.KeyVersion == 0 {
		txn.EncryptedAuth.KeyVersion = s.kms.KeyVersion()
	}

	persisted, err := s.datasource.CreateScheduledTransaction(ctx, txn)
	if err != nil {
		return nil, err
	}

	// Best effort. The periodic sweep catches the record if the queue is
	// down; a schedule must not fail because redis hiccuped.
	if s.queue != nil {
		if err := s.queue.queueScheduledTxExpiry(persisted.ScheduledTxID, persisted.ExpiresAt); err != nil {
			logrus.Errorf("failed to enqueue expiry for %s: %v", persisted.ScheduledTxID, err)
		}
	}

	return persisted, nil
}

// GetScheduledTransaction retrieves one of a user's records by ID. A
// record owned by a different user looks the same as a missing one, so an
// ID alone leaks nothing.
func (s *Schedvault) GetScheduledTransaction(ctx context.Context, id string, userID string) (*model.ScheduledTransaction, error) {
	txn, err := s.datasource.GetScheduledTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Scheduled transaction with ID '%s' not found", id), nil)
	}
	return txn, nil
}

// ListScheduledTransactions lists a user's records, optionally filtered by
// status, ordered by scheduled time.
func (s *Schedvault) ListScheduledTransactions(ctx context.Context, userID string, status model.Status) ([]model.ScheduledTransaction, error) {
	return s.datasource.GetScheduledTransactionsByUser(ctx, userID, status)
}

// CancelScheduledTransaction cancels a pending record. Cancelling an
// already-cancelled record succeeds; a record the worker has claimed is a
// conflict and the caller learns it is being executed.
func (s *Schedvault) CancelScheduledTransaction(ctx context.Context, id string, userID string) (*model.ScheduledTransaction, error) {
	ctx, span := otel.Tracer("scheduledtx.service").Start(ctx, "Cancelling transaction")
	defer span.End()

	return s.datasource.CancelScheduledTransaction(ctx, id, userID)
}
