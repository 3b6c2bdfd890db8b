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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/blazewallet/schedvault/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) CreateScheduledTransaction(ctx context.Context, txn *model.ScheduledTransaction) (*model.ScheduledTransaction, error) {
	args := m.Called(ctx, txn)
	if rf, ok := args.Get(0).(func(context.Context, *model.ScheduledTransaction) *model.ScheduledTransaction); ok {
		return rf(ctx, txn), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScheduledTransaction), args.Error(1)
}

func (m *MockDataSource) GetScheduledTransaction(ctx context.Context, id string) (*model.ScheduledTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScheduledTransaction), args.Error(1)
}

func (m *MockDataSource) GetScheduledTransactionsByUser(ctx context.Context, userID string, status model.Status) ([]model.ScheduledTransaction, error) {
	args := m.Called(ctx, userID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScheduledTransaction), args.Error(1)
}

func (m *MockDataSource) CancelScheduledTransaction(ctx context.Context, id string, userID string) (*model.ScheduledTransaction, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScheduledTransaction), args.Error(1)
}

func (m *MockDataSource) ClaimDueScheduledTransactions(ctx context.Context, limit int, claimGrace time.Duration) ([]*model.ScheduledTransaction, error) {
	args := m.Called(ctx, limit, claimGrace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ScheduledTransaction), args.Error(1)
}

func (m *MockDataSource) FinalizeScheduledTransaction(ctx context.Context, id string, status model.Status, transactionHash string, errorMessage string) error {
	args := m.Called(ctx, id, status, transactionHash, errorMessage)
	return args.Error(0)
}

func (m *MockDataSource) UpdateScheduledTransactionRetry(ctx context.Context, id string, retryCount int, errorMessage string) error {
	args := m.Called(ctx, id, retryCount, errorMessage)
	return args.Error(0)
}

func (m *MockDataSource) ExpireDueScheduledTransactions(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) ExpireScheduledTransaction(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) RecordDecryptAttempt(ctx context.Context, attempt *model.DecryptAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}
