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
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/blazewallet/schedvault/config"
	"github.com/blazewallet/schedvault/database"
	"github.com/blazewallet/schedvault/internal/apierror"
	"github.com/blazewallet/schedvault/internal/envelope"
	redlock "github.com/blazewallet/schedvault/internal/lock"
	"github.com/blazewallet/schedvault/internal/notification"
	"github.com/blazewallet/schedvault/internal/retry"
	"github.com/blazewallet/schedvault/model"
)

const executionLockKey = "schedvault:execution_pass"

// minPhraseWords is the sanity floor for a decrypted recovery phrase. A
// successful AEAD open that yields fewer words means the stored bundle was
// built from garbage, and broadcasting with it would burn the retry budget
// for nothing.
const minPhraseWords = 12

// ProcessDueScheduledTransactions runs one execution pass: claim a batch of
// due records and execute them sequentially. The redis lock keeps
// overlapping cron windows from contending on the same batch; correctness
// against duplicate execution rests on the conditional claim in the store.
func (s *Schedvault) ProcessDueScheduledTransactions(ctx context.Context) error {
	ctx, span := otel.Tracer("scheduledtx.worker").Start(ctx, "Processing due scheduled transactions")
	defer span.End()

	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	locker := redlock.NewLocker(s.redis, executionLockKey, database.GenerateUUIDWithSuffix("loc"))
	if err := locker.Lock(ctx, time.Minute); err != nil {
		logrus.Info("execution pass already in progress, skipping")
		return nil
	}
	defer func(locker *redlock.Locker, ctx context.Context) {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Errorf("failed to release execution lock: %v", err)
		}
	}(locker, ctx)

	claimed, err := s.datasource.ClaimDueScheduledTransactions(ctx, cnf.Worker.BatchLimit, cnf.ClaimGrace())
	if err != nil {
		notification.NotifyError(err)
		return err
	}
	if len(claimed) == 0 {
		return nil
	}
	logrus.Infof("claimed %d due scheduled transactions", len(claimed))

	for _, txn := range claimed {
		if err := s.executeScheduledTransaction(ctx, cnf, txn); err != nil {
			logrus.Errorf("scheduled transaction %s failed: %v", txn.ScheduledTxID, err)
		}
	}
	return nil
}

// executeScheduledTransaction drives one claimed record to a terminal
// status. Whatever happens in between, the record leaves this function
// finalized and its bundle purged; an error return only reports which
// terminal status it got and why.
func (s *Schedvault) executeScheduledTransaction(ctx context.Context, cnf *config.Configuration, txn *model.ScheduledTransaction) error {
	// A stale reclaim can hand us a record whose window closed while the
	// previous claim sat dead.
	if !txn.ExpiresAt.After(time.Now()) {
		return s.finalizeFailed(ctx, txn, "execution window elapsed before broadcast")
	}

	phrase, err := s.decryptRecoveryPhrase(ctx, cnf, txn)
	if err != nil {
		return s.finalizeFailed(ctx, txn, sanitizedMessage(err))
	}

	result, err := s.broadcastWithRetry(ctx, cnf, txn, phrase)
	if err != nil {
		return s.finalizeFailed(ctx, txn, sanitizedMessage(err))
	}

	if err := s.datasource.FinalizeScheduledTransaction(ctx, txn.ScheduledTxID, model.StatusCompleted, result.TransactionHash, ""); err != nil {
		notification.NotifyError(err)
		return err
	}
	logrus.Infof("scheduled transaction %s completed: %s", txn.ScheduledTxID, result.TransactionHash)
	return nil
}

// decryptRecoveryPhrase unwraps the envelope key through KMS and opens the
// envelope. KMS calls are retried on dependency failures; a failed AEAD
// open is terminal, the same wrapped inputs can never open differently.
// Every attempt lands in the decrypt audit trail.
func (s *Schedvault) decryptRecoveryPhrase(ctx context.Context, cnf *config.Configuration, txn *model.ScheduledTransaction) (string, error) {
	start := time.Now()
	bundle := txn.EncryptedAuth

	if err := bundle.Validate(time.Now()); err != nil {
		s.recordDecryptAttempt(ctx, txn.ScheduledTxID, false, err.Error(), start)
		return "", apierror.NewAPIError(apierror.ErrCryptoFailure, err.Error(), err)
	}

	policy := retry.NewPolicy(cnf.Worker.MaxRetryAttempts, time.Duration(cnf.Worker.BackoffBaseMs)*time.Millisecond)
	var envelopeKey []byte
	err := policy.Do(ctx, func() error {
		key, err := s.kms.DecryptEnvelopeKey(ctx, bundle.WrappedKey)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrDependencyFailure, "envelope key unwrap failed", err)
		}
		envelopeKey = key
		return nil
	})
	if err != nil {
		s.recordDecryptAttempt(ctx, txn.ScheduledTxID, false, "envelope key unwrap failed", start)
		return "", err
	}

	phrase, err := envelope.Decrypt(bundle.Ciphertext, bundle.Nonce, envelopeKey)
	envelope.Zero(envelopeKey)
	if err != nil {
		s.recordDecryptAttempt(ctx, txn.ScheduledTxID, false, "envelope authentication failed", start)
		return "", apierror.NewAPIError(apierror.ErrCryptoFailure, "envelope authentication failed", err)
	}

	if len(strings.Fields(phrase)) < minPhraseWords {
		s.recordDecryptAttempt(ctx, txn.ScheduledTxID, false, "decrypted phrase failed sanity check", start)
		return "", apierror.NewAPIError(apierror.ErrCryptoFailure, "decrypted phrase failed sanity check", nil)
	}

	s.recordDecryptAttempt(ctx, txn.ScheduledTxID, true, "", start)
	return phrase, nil
}

// broadcastWithRetry submits the transfer, retrying dependency failures
// within the record's remaining retry budget and recording each failed
// attempt on the row. Attempts spent under a previous claim count against
// the budget, so a record that keeps getting reclaimed cannot broadcast
// forever.
func (s *Schedvault) broadcastWithRetry(ctx context.Context, cnf *config.Configuration, txn *model.ScheduledTransaction, phrase string) (*BroadcastResult, error) {
	request := &BroadcastRequest{
		Chain:          txn.Chain,
		FromAddress:    txn.FromAddress,
		ToAddress:      txn.ToAddress,
		Amount:         txn.Amount,
		TokenAddress:   txn.TokenAddress,
		TokenSymbol:    txn.TokenSymbol,
		Memo:           txn.Memo,
		RecoveryPhrase: phrase,
	}

	remaining := cnf.Worker.MaxRetryAttempts - txn.RetryCount
	if remaining <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrDependencyFailure, "broadcast retry budget exhausted", nil)
	}

	policy := retry.NewPolicy(remaining, time.Duration(cnf.Worker.BackoffBaseMs)*time.Millisecond)
	attempt := txn.RetryCount
	var result *BroadcastResult
	err := policy.Do(ctx, func() error {
		bctx, cancel := context.WithTimeout(ctx, cnf.BroadcastTimeout())
		defer cancel()

		res, err := s.broadcaster.Broadcast(bctx, request)
		if err != nil {
			attempt++
			if updateErr := s.datasource.UpdateScheduledTransactionRetry(ctx, txn.ScheduledTxID, attempt, sanitizedMessage(err)); updateErr != nil {
				logrus.Errorf("failed to update retry count for %s: %v", txn.ScheduledTxID, updateErr)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SweepExpiredScheduledTransactions expires every pending record past its
// hard cutoff. Runs periodically as a backstop for per-record expiry tasks.
func (s *Schedvault) SweepExpiredScheduledTransactions(ctx context.Context) (int64, error) {
	expired, err := s.datasource.ExpireDueScheduledTransactions(ctx)
	if err != nil {
		notification.NotifyError(err)
		return 0, err
	}
	if expired > 0 {
		logrus.Infof("expired %d overdue scheduled transactions", expired)
	}
	return expired, nil
}

// ExpireScheduledTransaction expires a single record if it is still pending
// past its cutoff. Handler for the per-record expiry task; records that
// already moved on are left alone.
func (s *Schedvault) ExpireScheduledTransaction(ctx context.Context, id string) error {
	return s.datasource.ExpireScheduledTransaction(ctx, id)
}

func (s *Schedvault) finalizeFailed(ctx context.Context, txn *model.ScheduledTransaction, reason string) error {
	if err := s.datasource.FinalizeScheduledTransaction(ctx, txn.ScheduledTxID, model.StatusFailed, "", reason); err != nil {
		notification.NotifyError(err)
		return err
	}
	logrus.Warnf("scheduled transaction %s failed: %s", txn.ScheduledTxID, reason)
	return nil
}

func (s *Schedvault) recordDecryptAttempt(ctx context.Context, id string, success bool, reason string, start time.Time) {
	err := s.datasource.RecordDecryptAttempt(ctx, &model.DecryptAttempt{
		ScheduledTxID: id,
		Success:       success,
		Reason:        reason,
		DurationMs:    time.Since(start).Milliseconds(),
	})
	if err != nil {
		logrus.Errorf("failed to record decrypt attempt for %s: %v", id, err)
	}
}

// sanitizedMessage reduces an error to what is safe to persist on the
// record and return to the record's owner. APIError messages are written
// for that audience; anything else collapses to a generic failure.
func sanitizedMessage(err error) string {
	if apiErr, ok := err.(apierror.APIError); ok {
		return apiErr.Message
	}
	return "execution failed"
}
