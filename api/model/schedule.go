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
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/blazewallet/schedvault/model"
)

// EncryptedAuthPayload is the sealed authorization as the client submits
// it: all three crypto fields base64-encoded by Gin's []byte JSON handling.
type EncryptedAuthPayload struct {
	Ciphertext []byte    `json:"ciphertext"`
	Nonce      []byte    `json:"nonce"`
	WrappedKey []byte    `json:"wrapped_key"`
	ExpiresAt  time.Time `json:"expires_at"`
	KeyVersion int       `json:"key_version"`
}

// ScheduleTransaction is the request body for POST /schedule.
type ScheduleTransaction struct {
	UserID        string                `json:"user_id"`
	Chain         string                `json:"chain"`
	FromAddress   string                `json:"from_address"`
	ToAddress     string                `json:"to_address"`
	Amount        decimal.Decimal       `json:"amount"`
	TokenAddress  string                `json:"token_address,omitempty"`
	TokenSymbol   string                `json:"token_symbol,omitempty"`
	Memo          string                `json:"memo,omitempty"`
	ScheduledFor  time.Time             `json:"scheduled_for"`
	MaxWaitHours  int                   `json:"max_wait_hours,omitempty"`
	Priority      string                `json:"priority,omitempty"`
	EncryptedAuth *EncryptedAuthPayload `json:"encrypted_auth"`
}

func (s *ScheduleTransaction) ValidateScheduleTransaction() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.UserID, validation.Required),
		validation.Field(&s.Chain, validation.Required),
		validation.Field(&s.FromAddress, validation.Required),
		validation.Field(&s.ToAddress, validation.Required),
		validation.Field(&s.ScheduledFor, validation.Required),
		validation.Field(&s.MaxWaitHours, validation.Min(0), validation.Max(168)),
		validation.Field(&s.Priority, validation.In("", "low", "standard", "high", "instant")),
		validation.Field(&s.EncryptedAuth, validation.Required),
	)
}

// ToScheduledTransaction converts the request into the service model. The
// deeper guards (chain whitelist, time ordering, bundle completeness) run
// in the service layer.
func (s *ScheduleTransaction) ToScheduledTransaction() *model.ScheduledTransaction {
	txn := &model.ScheduledTransaction{
		UserID:       s.UserID,
		Chain:        s.Chain,
		FromAddress:  s.FromAddress,
		ToAddress:    s.ToAddress,
		Amount:       s.Amount,
		TokenAddress: s.TokenAddress,
		TokenSymbol:  s.TokenSymbol,
		Memo:         s.Memo,
		ScheduledFor: s.ScheduledFor,
		MaxWaitHours: s.MaxWaitHours,
		Priority:     model.Priority(s.Priority),
	}
	if s.EncryptedAuth != nil {
		txn.EncryptedAuth = &model.EncryptedAuthBundle{
			Ciphertext: s.EncryptedAuth.Ciphertext,
			Nonce:      s.EncryptedAuth.Nonce,
			WrappedKey: s.EncryptedAuth.WrappedKey,
			ExpiresAt:  s.EncryptedAuth.ExpiresAt,
			KeyVersion: s.EncryptedAuth.KeyVersion,
		}
	}
	return txn
}
