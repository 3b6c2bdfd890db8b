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

package database

import (
	"context"
	"time"

	"github.com/blazewallet/schedvault/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	scheduledTransaction
	decryptAudit
}

// scheduledTransaction defines methods for handling scheduled transaction records.
type scheduledTransaction interface {
	CreateScheduledTransaction(ctx context.Context, txn *model.ScheduledTransaction) (*model.ScheduledTransaction, error)                    // Persists a new pending record with its bundle
	GetScheduledTransaction(ctx context.Context, id string) (*model.ScheduledTransaction, error)                                            // Retrieves a record by ID (bundle included when present)
	GetScheduledTransactionsByUser(ctx context.Context, userID string, status model.Status) ([]model.ScheduledTransaction, error)           // Lists a user's records filtered by status, scheduled_for ascending
	CancelScheduledTransaction(ctx context.Context, id string, userID string) (*model.ScheduledTransaction, error)                          // Conditional cancel: pending only, nulls the bundle
	ClaimDueScheduledTransactions(ctx context.Context, limit int, claimGrace time.Duration) ([]*model.ScheduledTransaction, error)          // Atomically flips due pending rows (and stale executing rows) to executing
	FinalizeScheduledTransaction(ctx context.Context, id string, status model.Status, transactionHash string, errorMessage string) error    // Terminal transition from executing; nulls the bundle in the same statement
	UpdateScheduledTransactionRetry(ctx context.Context, id string, retryCount int, errorMessage string) error                              // Bumps retry bookkeeping on a claimed record
	ExpireDueScheduledTransactions(ctx context.Context) (int64, error)                                                                      // Sweep: pending rows past expires_at become expired, bundles nulled
	ExpireScheduledTransaction(ctx context.Context, id string) error                                                                        // Expires one record if still pending and past its cutoff
}

// decryptAudit defines methods for the decrypt attempt audit trail.
type decryptAudit interface {
	RecordDecryptAttempt(ctx context.Context, attempt *model.DecryptAttempt) error
}
