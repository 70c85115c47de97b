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
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	model2 "github.com/carebridge/settlement/api/model"
)

// CreateSettlement pays out a payee's pending earnings. The amount in the
// request is the caller's view of what is owed and is verified against the
// ledger before any money moves.
//
// Responses:
// - 400 Bad Request: If the request is malformed or fails validation.
// - 200 OK: The settlement ran; the body reports success, failed or in_doubt.
func (a Api) CreateSettlement(c *gin.Context) {
	var newSettlement model2.CreateSettlement
	if err := c.ShouldBindJSON(&newSettlement); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := newSettlement.ValidateCreateSettlement(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.engine.Settle(c.Request.Context(), newSettlement.PayeeID, decimal.NewFromFloat(newSettlement.Amount))
	if err != nil {
		respondError(c, err)
		return
	}

	// A failed or in-doubt settlement is still a processed request; the
	// outcome is in the body, not the status code.
	c.JSON(http.StatusOK, resp)
}

// GetSettlementHistory returns a payee's settlement attempts, newest first.
// Supports "limit" and "offset" query parameters.
func (a Api) GetSettlementHistory(c *gin.Context) {
	payeeID, passed := c.Params.Get("payee_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payee_id is required. pass payee_id in the route /:payee_id"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	resp, err := a.engine.SettlementHistory(c.Request.Context(), payeeID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetSettlementByKey returns the full audit history of one logical
// settlement, oldest first.
func (a Api) GetSettlementByKey(c *gin.Context) {
	key, passed := c.Params.Get("idempotency_key")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idempotency_key is required. pass idempotency_key in the route /:idempotency_key"})
		return
	}

	resp, err := a.engine.GetAttemptsByIdempotencyKey(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(resp) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no settlement attempts found for idempotency key"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RecheckSettlement asks the transfer processor for the current status of an
// in-doubt settlement and resolves it when the answer is definitive.
func (a Api) RecheckSettlement(c *gin.Context) {
	key, passed := c.Params.Get("idempotency_key")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idempotency_key is required. pass idempotency_key in the route /:idempotency_key"})
		return
	}

	status, err := a.engine.RecheckInDoubt(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"idempotency_key": key, "transfer_status": status})
}

// TransferWebhook receives outcome notifications from the transfer
// processor. The event is queued for reconciliation and acknowledged
// immediately; delivery is at-least-once, so replays are expected and
// harmless.
func (a Api) TransferWebhook(c *gin.Context) {
	var webhook model2.TransferWebhook
	if err := c.ShouldBindJSON(&webhook); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := webhook.ValidateTransferWebhook(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := a.engine.QueueTransferEvent(c.Request.Context(), webhook.ToTransferEvent()); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}
