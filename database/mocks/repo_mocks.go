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
package mocks

import (
	"context"
	"database/sql"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/carebridge/settlement/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Work-ledger methods

func (m *MockDataSource) RecordWorkRecord(ctx context.Context, record *model.WorkRecord) (*model.WorkRecord, error) {
	args := m.Called(ctx, record)
	return args.Get(0).(*model.WorkRecord), args.Error(1)
}

func (m *MockDataSource) GetWorkRecord(ctx context.Context, id string) (*model.WorkRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*model.WorkRecord), args.Error(1)
}

func (m *MockDataSource) GetWorkRecordsByPayee(ctx context.Context, payeeID, status string) ([]*model.WorkRecord, error) {
	args := m.Called(ctx, payeeID, status)
	return args.Get(0).([]*model.WorkRecord), args.Error(1)
}

func (m *MockDataSource) BeginTx(ctx context.Context) (*sql.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sql.Tx), args.Error(1)
}

func (m *MockDataSource) LockPendingWorkRecords(ctx context.Context, tx *sql.Tx, payeeID string) ([]*model.WorkRecord, error) {
	args := m.Called(ctx, tx, payeeID)
	return args.Get(0).([]*model.WorkRecord), args.Error(1)
}

func (m *MockDataSource) LockWorkRecordsByID(ctx context.Context, tx *sql.Tx, ids []string) ([]*model.WorkRecord, error) {
	args := m.Called(ctx, tx, ids)
	return args.Get(0).([]*model.WorkRecord), args.Error(1)
}

func (m *MockDataSource) MarkWorkRecordsPaid(ctx context.Context, tx *sql.Tx, ids []string, externalReference string, paidAt time.Time) error {
	args := m.Called(ctx, tx, ids, externalReference, paidAt)
	return args.Error(0)
}

func (m *MockDataSource) MarkWorkRecordsFailed(ctx context.Context, tx *sql.Tx, ids []string, reason string) error {
	args := m.Called(ctx, tx, ids, reason)
	return args.Error(0)
}

// Payee methods

func (m *MockDataSource) GetPayee(ctx context.Context, id string) (*model.Payee, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payee), args.Error(1)
}

func (m *MockDataSource) UpsertPayee(ctx context.Context, p *model.Payee) (*model.Payee, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(*model.Payee), args.Error(1)
}

// Audit-trail methods

func (m *MockDataSource) RecordSettlementAttempt(ctx context.Context, attempt *model.SettlementAttempt) (*model.SettlementAttempt, error) {
	args := m.Called(ctx, attempt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SettlementAttempt), args.Error(1)
}

func (m *MockDataSource) RecordSettlementAttemptInTx(ctx context.Context, tx *sql.Tx, attempt *model.SettlementAttempt) (*model.SettlementAttempt, error) {
	args := m.Called(ctx, tx, attempt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SettlementAttempt), args.Error(1)
}

func (m *MockDataSource) GetSettlementAttemptsByPayee(ctx context.Context, payeeID string, limit, offset int) ([]*model.SettlementAttempt, error) {
	args := m.Called(ctx, payeeID, limit, offset)
	return args.Get(0).([]*model.SettlementAttempt), args.Error(1)
}

func (m *MockDataSource) GetSettlementAttemptsByIdempotencyKey(ctx context.Context, key string) ([]*model.SettlementAttempt, error) {
	args := m.Called(ctx, key)
	return args.Get(0).([]*model.SettlementAttempt), args.Error(1)
}

func (m *MockDataSource) HasResolvedAttempt(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}
