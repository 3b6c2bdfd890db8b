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

package model

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a scheduled transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Priority orders worker processing. It never affects eligibility or
// correctness, only which due record goes first.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityStandard Priority = "standard"
	PriorityHigh     Priority = "high"
	PriorityInstant  Priority = "instant"
)

// SupportedChains lists the chains the executor can broadcast on.
var SupportedChains = []string{
	"ethereum", "polygon", "base", "arbitrum", "optimism", "avalanche",
	"fantom", "cronos", "zksync", "linea", "solana", "bitcoin",
	"litecoin", "dogecoin", "bitcoincash",
}

// EncryptedAuthBundle is the only secret-bearing artifact ever stored:
// the recovery phrase sealed under a single-use envelope key, plus that
// key wrapped under the KMS public key. Write-once, read-once-by-worker,
// then erased. It is excluded from record JSON so it can never be echoed
// back to a client.
type EncryptedAuthBundle struct {
	Ciphertext  []byte    `json:"ciphertext"`
	Nonce       []byte    `json:"nonce"`
	WrappedKey  []byte    `json:"wrapped_key"`
	EncryptedAt time.Time `json:"encrypted_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	KeyVersion  int       `json:"key_version"`
}

// Validate checks the bundle is structurally complete and not yet expired.
func (b *EncryptedAuthBundle) Validate(now time.Time) error {
	if b == nil {
		return errors.New("encrypted authorization is required")
	}
	if len(b.Ciphertext) == 0 || len(b.Nonce) == 0 || len(b.WrappedKey) == 0 {
		return errors.New("encrypted authorization is incomplete")
	}
	if !b.ExpiresAt.After(now) {
		return errors.New("encrypted authorization has expired")
	}
	return nil
}

// ScheduledTransaction is one user-authorized future on-chain action. The
// record itself is kept for audit after it leaves pending; only the
// EncryptedAuth field is purged.
type ScheduledTransaction struct {
	ScheduledTxID   string               `json:"scheduled_tx_id"`
	UserID          string               `json:"user_id"`
	Chain           string               `json:"chain"`
	FromAddress     string               `json:"from_address"`
	ToAddress       string               `json:"to_address"`
	Amount          decimal.Decimal      `json:"amount"`
	TokenAddress    string               `json:"token_address,omitempty"`
	TokenSymbol     string               `json:"token_symbol,omitempty"`
	Memo            string               `json:"memo,omitempty"`
	ScheduledFor    time.Time            `json:"scheduled_for"`
	ExpiresAt       time.Time            `json:"expires_at"`
	MaxWaitHours    int                  `json:"max_wait_hours"`
	Priority        Priority             `json:"priority"`
	Status          Status               `json:"status"`
	EncryptedAuth   *EncryptedAuthBundle `json:"-"`
	RetryCount      int                  `json:"retry_count"`
	ErrorMessage    string               `json:"error_message,omitempty"`
	ExecutedAt      *time.Time           `json:"executed_at,omitempty"`
	TransactionHash string               `json:"transaction_hash,omitempty"`
	ClaimedAt       *time.Time           `json:"-"`
	CreatedAt       time.Time            `json:"created_at"`
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusExecuting, StatusCancelled, StatusExpired},
	StatusExecuting: {StatusCompleted, StatusFailed},
}

// CanTransitionTo reports whether the lifecycle state machine permits
// moving from the record's current status to target.
func (t *ScheduledTransaction) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[t.Status] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status can never change again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(s)) {
	case StatusPending, StatusExecuting, StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return Status(strings.ToLower(s)), nil
	}
	return "", errors.New("unknown status: " + s)
}

// IsSupportedChain reports whether the executor can broadcast on chain.
func IsSupportedChain(chain string) bool {
	chain = strings.ToLower(chain)
	for _, c := range SupportedChains {
		if c == chain {
			return true
		}
	}
	return false
}

// ApplyDefaults fills priority, max wait, and the expiry cutoff. The hard
// cutoff defaults to scheduledFor + maxWaitHours.
func (t *ScheduledTransaction) ApplyDefaults(defaultMaxWaitHours int) {
	t.Chain = strings.ToLower(t.Chain)
	if t.Priority == "" {
		t.Priority = PriorityStandard
	}
	if t.MaxWaitHours == 0 {
		t.MaxWaitHours = defaultMaxWaitHours
	}
	if t.ExpiresAt.IsZero() && !t.ScheduledFor.IsZero() {
		t.ExpiresAt = t.ScheduledFor.Add(time.Duration(t.MaxWaitHours) * time.Hour)
	}
}

// Validate enforces the creation guards: required intent fields, a
// supported chain, sane time ordering, and a complete unexpired bundle.
func (t *ScheduledTransaction) Validate(now time.Time) error {
	if t.UserID == "" {
		return errors.New("user_id is required")
	}
	if t.Chain == "" || t.FromAddress == "" || t.ToAddress == "" {
		return errors.New("chain, from_address and to_address are required")
	}
	if !IsSupportedChain(t.Chain) {
		return errors.New("unsupported chain: " + t.Chain)
	}
	if t.Amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("amount must be greater than zero")
	}
	if t.ScheduledFor.IsZero() {
		return errors.New("scheduled_for is required")
	}
	// a small allowance for clock skew between client and server
	if t.ScheduledFor.Before(now.Add(-time.Minute)) {
		return errors.New("scheduled_for must not be in the past")
	}
	if !t.ExpiresAt.After(t.ScheduledFor) {
		return errors.New("expires_at must be after scheduled_for")
	}
	if err := t.EncryptedAuth.Validate(now); err != nil {
		return err
	}
	return nil
}

// IsDue reports whether a pending record is inside its execution window.
func (t *ScheduledTransaction) IsDue(now time.Time) bool {
	return t.Status == StatusPending && !t.ScheduledFor.After(now) && t.ExpiresAt.After(now)
}

// DecryptAttempt is one row of the decrypt audit trail. Reasons are
// sanitized before they get here; no key material, ever.
type DecryptAttempt struct {
	ScheduledTxID string    `json:"scheduled_tx_id"`
	Success       bool      `json:"success"`
	Reason        string    `json:"reason,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}
