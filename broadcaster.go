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

	"github.com/shopspring/decimal"

	"github.com/blazewallet/schedvault/internal/apierror"
)

// BroadcastRequest carries everything a chain integration needs to sign
// and submit the transfer. RecoveryPhrase lives only for the duration of
// the call; the worker drops it immediately after Broadcast returns.
type BroadcastRequest struct {
	Chain          string
	FromAddress    string
	ToAddress      string
	Amount         decimal.Decimal
	TokenAddress   string
	TokenSymbol    string
	Memo           string
	RecoveryPhrase string
}

// BroadcastResult is the on-chain outcome of a successful submission.
type BroadcastResult struct {
	TransactionHash string
}

// Broadcaster signs and submits a transfer on the target chain. Transient
// failures (RPC unreachable, mempool congestion) should be returned as
// retryable dependency errors; a rejection that cannot succeed on retry
// (bad address, insufficient funds) should not be.
type Broadcaster interface {
	Broadcast(ctx context.Context, req *BroadcastRequest) (*BroadcastResult, error)
}

// UnsupportedBroadcaster fails every submission. It is the default wiring
// for deployments that schedule and custody transactions here but execute
// them through an external relay.
type UnsupportedBroadcaster struct{}

func (UnsupportedBroadcaster) Broadcast(_ context.Context, req *BroadcastRequest) (*BroadcastResult, error) {
	return nil, apierror.NewAPIError(apierror.ErrInternalServer, "no broadcaster configured for chain "+req.Chain, nil)
}
