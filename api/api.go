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
	"errors"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/carebridge/settlement"
	"github.com/carebridge/settlement/api/middleware"
	"github.com/carebridge/settlement/config"
	"github.com/carebridge/settlement/internal/apierror"
)

type Api struct {
	engine *settlement.Engine
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/work-records", a.CreateWorkRecord)
	router.POST("/work-records/write-off", a.WriteOffWorkRecords)
	router.GET("/work-records/:id", a.GetWorkRecord)

	router.POST("/payees", a.UpsertPayee)
	router.GET("/payees/:payee_id", a.GetPayee)
	router.GET("/payees/:payee_id/work-records", a.GetWorkRecordsByPayee)
	router.GET("/payees/:payee_id/pending-earnings", a.GetPendingEarnings)
	router.GET("/payees/:payee_id/settlements", a.GetSettlementHistory)

	router.POST("/settlements", a.CreateSettlement)
	router.GET("/settlements/key/:idempotency_key", a.GetSettlementByKey)
	router.POST("/recheck-settlement/:idempotency_key", a.RecheckSettlement)

	router.POST("/webhooks/transfers", a.TransferWebhook)
	return a.router
}

func NewAPI(engine *settlement.Engine) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware("carebridge-settlement"))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{engine: engine, router: r}
}

// respondError maps a service error to its HTTP status. apierror codes carry
// their own mapping; anything else is a 500.
func respondError(c *gin.Context, err error) {
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		c.JSON(apierror.MapErrorToHTTPStatus(apiErr), gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}
	c.JSON(500, gin.H{"error": err.Error()})
}
