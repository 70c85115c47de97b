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

// UpsertPayee syncs a payee in from the onboarding collaborator.
//
// Responses:
// - 400 Bad Request: If there's an error in binding JSON or validating the payee.
// - 201 Created: If the payee is successfully created or updated.
func (a Api) UpsertPayee(c *gin.Context) {
	var newPayee model2.UpsertPayee
	if err := c.ShouldBindJSON(&newPayee); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := newPayee.ValidateUpsertPayee(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.engine.UpsertPayee(c.Request.Context(), newPayee.ToPayee())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetPayee retrieves a payee by ID.
func (a Api) GetPayee(c *gin.Context) {
	payeeID, passed := c.Params.Get("payee_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payee_id is required. pass payee_id in the route /:payee_id"})
		return
	}

	resp, err := a.engine.GetPayee(c.Request.Context(), payeeID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
