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

// Package settlement is the service layer of the Carebridge settlement
// engine: it prices completed work into the ledger, settles a payee's
// pending earnings through the external transfer provider exactly once, and
// reconciles outcomes the synchronous path could not determine.
package settlement

import (
	"context"
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/carebridge/settlement/config"
	"github.com/carebridge/settlement/database"
	redis_db "github.com/carebridge/settlement/internal/redis-db"
	"github.com/carebridge/settlement/pricing"
	"github.com/carebridge/settlement/transfer"
)

// Payment status of a work record.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

// Outcome of a settlement attempt.
const (
	OutcomeSuccess         = "success"
	OutcomeFailed          = "failed"
	OutcomeInDoubt         = "in_doubt"
	OutcomeResolvedSuccess = "resolved_success"
	OutcomeResolvedFailed  = "resolved_failed"
)

// AmountTolerance is the rounding slack allowed between a caller-claimed
// amount and the true pending sum, and between split parts and the gross
// charge: one cent.
var AmountTolerance = decimal.New(1, -2)

//go:embed sql/*.sql
var SQLFiles embed.FS

// TransferGateway is the slice of the transfer provider the engine needs.
// *transfer.Client satisfies it; tests substitute their own.
type TransferGateway interface {
	CreateTransfer(ctx context.Context, req transfer.Request) (*transfer.Response, error)
	GetTransferByIdempotencyKey(ctx context.Context, key string) (*transfer.Response, error)
}

// Engine represents the main struct for the settlement application.
type Engine struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	rules      *pricing.Rules
	transfer   TransferGateway
}

// NewEngine initializes an Engine with the provided database datasource.
// It fetches the configuration and initializes the Redis client, queue,
// pricing rules and transfer client.
func NewEngine(db database.IDataSource) (*Engine, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)

	newEngine := &Engine{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		rules:      pricing.NewRules(configuration.Pricing),
		transfer:   transfer.NewClient(configuration.TransferProvider),
	}
	return newEngine, nil
}

// Rules exposes the rate table in effect, e.g. for the API to report the
// pricing version.
func (e *Engine) Rules() *pricing.Rules {
	return e.rules
}
