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

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	model2 "github.com/carebridge/settlement/api/model"
)

// CreateWorkRecord handles the recording of a completed unit of work.
// It binds the incoming JSON request to a CreateWorkRecord object, validates
// it, and records the work with its computed revenue split.
//
// Responses:
// - 400 Bad Request: If there's an error in binding JSON or validating the work record.
// - 201 Created: If the work record is successfully created.
func (a Api) CreateWorkRecord(c *gin.Context) {
	var newWorkRecord model2.CreateWorkRecord
	if err := c.ShouldBindJSON(&newWorkRecord); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := newWorkRecord.ValidateCreateWorkRecord(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.engine.RecordWork(c.Request.Context(), newWorkRecord.ToWorkInput())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// WriteOffWorkRecords marks pending ledger entries as failed so they are
// excluded from future settlements. The reason is recorded on each entry.
func (a Api) WriteOffWorkRecords(c *gin.Context) {
	var writeOff model2.WriteOffWorkRecords
	if err := c.ShouldBindJSON(&writeOff); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := writeOff.ValidateWriteOffWorkRecords(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := a.engine.WriteOffWorkRecords(c.Request.Context(), writeOff.RecordIDs, writeOff.Reason); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"record_ids": writeOff.RecordIDs, "status": "failed"})
}

// GetWorkRecord retrieves a single work record by its ID.
func (a Api) GetWorkRecord(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.engine.GetWorkRecord(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetWorkRecordsByPayee retrieves a payee's ledger entries, optionally
// filtered by payment status via the "status" query parameter.
func (a Api) GetWorkRecordsByPayee(c *gin.Context) {
	payeeID, passed := c.Params.Get("payee_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payee_id is required. pass payee_id in the route /:payee_id"})
		return
	}
	status := c.Query("status")

	resp, err := a.engine.GetWorkRecordsByPayee(c.Request.Context(), payeeID, status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetPendingEarnings returns the sum a payee is currently owed, which is the
// amount a settlement request for the payee should claim.
func (a Api) GetPendingEarnings(c *gin.Context) {
	payeeID, passed := c.Params.Get("payee_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payee_id is required. pass payee_id in the route /:payee_id"})
		return
	}

	total, records, err := a.engine.PendingEarnings(c.Request.Context(), payeeID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payee_id":         payeeID,
		"pending_earnings": total,
		"entry_count":      len(records),
	})
}
