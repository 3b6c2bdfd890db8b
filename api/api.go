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
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blazewallet/schedvault"
	"github.com/blazewallet/schedvault/api/middleware"
	"github.com/blazewallet/schedvault/config"
)

// Api serves the scheduling surface. It runs with a public-only KMS
// service: there is no route here, and no code path below one, that can
// unwrap an envelope key.
type Api struct {
	service *schedvault.Schedvault
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/schedule", a.ScheduleTransaction)
	router.GET("/schedule", a.GetScheduledTransactions)
	router.GET("/schedule/:id", a.GetScheduledTransaction)
	router.DELETE("/schedule", a.CancelScheduledTransaction)

	router.GET("/kms/public-key", a.GetKMSPublicKey)
	router.GET("/health/kms", a.KMSHealth)

	return a.router
}

func NewAPI(s *schedvault.Schedvault) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware("schedvault-api"))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{service: s, router: r}
}
