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

package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/carebridge/settlement/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	workRecord        // Interface for work-ledger operations
	payee             // Interface for payee reads and onboarding sync
	settlementAttempt // Interface for the append-only audit trail
}

// workRecord defines methods for handling the work ledger.
type workRecord interface {
	RecordWorkRecord(ctx context.Context, record *model.WorkRecord) (*model.WorkRecord, error)         // Records a new work record with its computed split
	GetWorkRecord(ctx context.Context, id string) (*model.WorkRecord, error)                           // Retrieves a work record by ID
	GetWorkRecordsByPayee(ctx context.Context, payeeID, status string) ([]*model.WorkRecord, error)    // Retrieves a payee's work records, optionally filtered by status
	BeginTx(ctx context.Context) (*sql.Tx, error)                                                      // Opens the transaction a settlement runs in
	LockPendingWorkRecords(ctx context.Context, tx *sql.Tx, payeeID string) ([]*model.WorkRecord, error) // Row-locks all pending records for a payee, ordered by work date then ID
	LockWorkRecordsByID(ctx context.Context, tx *sql.Tx, ids []string) ([]*model.WorkRecord, error)    // Row-locks an explicit record set, same ordering
	MarkWorkRecordsPaid(ctx context.Context, tx *sql.Tx, ids []string, externalReference string, paidAt time.Time) error // Transitions pending records to paid
	MarkWorkRecordsFailed(ctx context.Context, tx *sql.Tx, ids []string, reason string) error          // Transitions pending records to failed
}

// payee defines methods for handling payees.
type payee interface {
	GetPayee(ctx context.Context, id string) (*model.Payee, error)
	UpsertPayee(ctx context.Context, p *model.Payee) (*model.Payee, error)
}

// settlementAttempt defines methods for the audit trail. Inserts only; the
// trail is append-only and has no update path.
type settlementAttempt interface {
	RecordSettlementAttempt(ctx context.Context, attempt *model.SettlementAttempt) (*model.SettlementAttempt, error)
	RecordSettlementAttemptInTx(ctx context.Context, tx *sql.Tx, attempt *model.SettlementAttempt) (*model.SettlementAttempt, error)
	GetSettlementAttemptsByPayee(ctx context.Context, payeeID string, limit, offset int) ([]*model.SettlementAttempt, error)
	GetSettlementAttemptsByIdempotencyKey(ctx context.Context, key string) ([]*model.SettlementAttempt, error)
	HasResolvedAttempt(ctx context.Context, key string) (bool, error)
}
