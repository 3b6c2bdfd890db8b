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

	model2 "github.com/blazewallet/schedvault/api/model"
	"github.com/blazewallet/schedvault/internal/apierror"
	"github.com/blazewallet/schedvault/model"
)

// ScheduleTransaction handles POST /schedule. The response echoes the
// schedule, never the sealed authorization: the record's JSON encoding
// excludes it by construction.
func (a Api) ScheduleTransaction(c *gin.Context) {
	var newSchedule model2.ScheduleTransaction
	if err := c.ShouldBindJSON(&newSchedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := newSchedule.ValidateScheduleTransaction(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.service.Schedule(c.Request.Context(), newSchedule.ToScheduledTransaction())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetScheduledTransactions handles GET /schedule?user_id=&status=.
func (a Api) GetScheduledTransactions(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	var status model.Status
	if raw := c.Query("status"); raw != "" {
		parsed, err := model.ParseStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status = parsed
	}

	resp, err := a.service.ListScheduledTransactions(c.Request.Context(), userID, status)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetScheduledTransaction handles GET /schedule/:id?user_id=. The lookup
// is scoped to the requesting user; another user's record returns 404.
func (a Api) GetScheduledTransaction(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	resp, err := a.service.GetScheduledTransaction(c.Request.Context(), id, userID)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CancelScheduledTransaction handles DELETE /schedule?id=&user_id=.
// Cancelling a record that is already cancelled returns 200; a record the
// worker has claimed returns 409.
func (a Api) CancelScheduledTransaction(c *gin.Context) {
	id := c.Query("id")
	userID := c.Query("user_id")
	if id == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id and user_id are required"})
		return
	}

	resp, err := a.service.CancelScheduledTransaction(c.Request.Context(), id, userID)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetKMSPublicKey handles GET /kms/public-key. The wrapping public key is
// safe for any authenticated client; it cannot decrypt anything.
func (a Api) GetKMSPublicKey(c *gin.Context) {
	publicKey, keyVersion, err := a.service.KMSPublicKey(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "key service unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"public_key": publicKey, "key_version": keyVersion})
}

// KMSHealth handles GET /health/kms.
func (a Api) KMSHealth(c *gin.Context) {
	if !a.service.KMSHealthy(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
