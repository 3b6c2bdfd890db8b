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
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/blazewallet/schedvault"
	model2 "github.com/blazewallet/schedvault/api/model"
	"github.com/blazewallet/schedvault/config"
	"github.com/blazewallet/schedvault/database/mocks"
	"github.com/blazewallet/schedvault/internal/apierror"
	"github.com/blazewallet/schedvault/internal/envelope"
	"github.com/blazewallet/schedvault/internal/keywrap"
	"github.com/blazewallet/schedvault/internal/kms"
	"github.com/blazewallet/schedvault/model"
)

type TestRequest struct {
	Payload io.Reader
	Router  *gin.Engine
	Method  string
	Route   string
	Header  map[string]string
}

func SetUpTestRequest(s TestRequest) *httptest.ResponseRecorder {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)
	return resp
}

func setupRouter(t *testing.T) (*gin.Engine, *mocks.MockDataSource, kms.Service) {
	t.Helper()
	config.MockConfig(&config.Configuration{})

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.NoError(t, err)
	kmsService, err := kms.NewLocalService(priv, 1)
	assert.NoError(t, err)

	ds := new(mocks.MockDataSource)
	service := schedvault.NewSchedvaultWithDependencies(ds, kms.NewPublicOnly(kmsService), schedvault.UnsupportedBroadcaster{})
	router := NewAPI(service).Router()
	return router, ds, kmsService
}

func schedulePayload(t *testing.T, kmsService kms.Service) *model2.ScheduleTransaction {
	t.Helper()
	publicKey, err := kmsService.GetPublicKey(context.Background())
	assert.NoError(t, err)

	key, err := envelope.GenerateKey()
	assert.NoError(t, err)
	phrase := "abandon ability able about above absent absorb abstract absurd abuse access accident"
	ciphertext, nonce, err := envelope.Encrypt(phrase, key)
	assert.NoError(t, err)
	wrapped, err := keywrap.Wrap(key, publicKey)
	assert.NoError(t, err)

	return &model2.ScheduleTransaction{
		UserID:       "usr_1",
		Chain:        "ethereum",
		FromAddress:  "0xabc",
		ToAddress:    "0xdef",
		Amount:       decimal.NewFromFloat(0.25),
		ScheduledFor: time.Now().Add(2 * time.Hour),
		EncryptedAuth: &model2.EncryptedAuthPayload{
			Ciphertext: ciphertext,
			Nonce:      nonce,
			WrappedKey: wrapped,
			KeyVersion: 1,
		},
	}
}

func TestScheduleTransaction_Created(t *testing.T) {
	router, ds, kmsService := setupRouter(t)

	ds.On("CreateScheduledTransaction", mock.Anything, mock.Anything).Return(
		func(_ context.Context, txn *model.ScheduledTransaction) *model.ScheduledTransaction { return txn }, nil)

	body, err := json.Marshal(schedulePayload(t, kmsService))
	assert.NoError(t, err)

	resp := SetUpTestRequest(TestRequest{
		Payload: bytes.NewBuffer(body),
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/schedule",
	})

	assert.Equal(t, http.StatusCreated, resp.Code)

	var created model.ScheduledTransaction
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.True(t, strings.HasPrefix(created.ScheduledTxID, "stx_"))
	assert.Equal(t, model.StatusPending, created.Status)
	ds.AssertExpectations(t)
}

// The response to a schedule request must never echo the sealed
// authorization, in any field, under any name.
func TestScheduleTransaction_ResponseOmitsBundle(t *testing.T) {
	router, ds, kmsService := setupRouter(t)

	ds.On("CreateScheduledTransaction", mock.Anything, mock.Anything).Return(
		func(_ context.Context, txn *model.ScheduledTransaction) *model.ScheduledTransaction { return txn }, nil)

	body, err := json.Marshal(schedulePayload(t, kmsService))
	assert.NoError(t, err)

	resp := SetUpTestRequest(TestRequest{
		Payload: bytes.NewBuffer(body),
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/schedule",
	})

	assert.Equal(t, http.StatusCreated, resp.Code)
	raw := resp.Body.String()
	assert.NotContains(t, raw, "ciphertext")
	assert.NotContains(t, raw, "wrapped_key")
	assert.NotContains(t, raw, "encrypted_auth")
}

func TestScheduleTransaction_MissingFields(t *testing.T) {
	router, ds, kmsService := setupRouter(t)

	payload := schedulePayload(t, kmsService)
	payload.UserID = ""
	body, err := json.Marshal(payload)
	assert.NoError(t, err)

	resp := SetUpTestRequest(TestRequest{
		Payload: bytes.NewBuffer(body),
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/schedule",
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	ds.AssertNotCalled(t, "CreateScheduledTransaction", mock.Anything, mock.Anything)
}

func TestScheduleTransaction_UnsupportedChain(t *testing.T) {
	router, ds, kmsService := setupRouter(t)

	payload := schedulePayload(t, kmsService)
	payload.Chain = "chain-that-does-not-exist"
	body, err := json.Marshal(payload)
	assert.NoError(t, err)

	resp := SetUpTestRequest(TestRequest{
		Payload: bytes.NewBuffer(body),
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/schedule",
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	ds.AssertNotCalled(t, "CreateScheduledTransaction", mock.Anything, mock.Anything)
}

func TestGetScheduledTransactions(t *testing.T) {
	router, ds, _ := setupRouter(t)

	ds.On("GetScheduledTransactionsByUser", mock.Anything, "usr_1", model.StatusPending).Return(
		[]model.ScheduledTransaction{{ScheduledTxID: "stx_1", UserID: "usr_1", Status: model.StatusPending}}, nil)

	resp := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodGet,
		Route:  "/schedule?user_id=usr_1&status=pending",
	})

	assert.Equal(t, http.StatusOK, resp.Code)
	var list []model.ScheduledTransaction
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 1)
	ds.AssertExpectations(t)
}

func TestGetScheduledTransactions_RequiresUserID(t *testing.T) {
	router, _, _ := setupRouter(t)

	resp := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodGet,
		Route:  "/schedule",
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetScheduledTransaction(t *testing.T) {
	router, ds, _ := setupRouter(t)

	ds.On("GetScheduledTransaction", mock.Anything, "stx_1").Return(
		&model.ScheduledTransaction{ScheduledTxID: "stx_1", UserID: "usr_1", Status: model.StatusPending}, nil)

	resp := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodGet,
		Route:  "/schedule/stx_1?user_id=usr_1",
	})

	assert.Equal(t, http.StatusOK, resp.Code)
	var txn model.ScheduledTransaction
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&txn))
	assert.Equal(t, "stx_1", txn.ScheduledTxID)
	ds.AssertExpectations(t)
}

// An ID by itself is not enough to read a record. Another user's record
// answers 404, the same as one that does not exist.
func TestGetScheduledTransaction_ScopedToOwner(t *testing.T) {
	router, ds, _ := setupRouter(t)

	ds.On("GetScheduledTransaction", mock.Anything, "stx_1").Return(
		&model.ScheduledTransaction{ScheduledTxID: "stx_1", UserID: "usr_1", Status: model.StatusPending}, nil)

	resp := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodGet,
		Route:  "/schedule/stx_1?user_id=usr_other",
	})

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetScheduledTransaction_RequiresUserID(t *testing.T) {
	router, ds, _ := setupRouter(t)

	resp := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodGet,
		Route:  "/schedule/stx_1",
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	ds.AssertNotCalled(t, "GetScheduledTransaction", mock.Anything, mock.Anything)
}

func TestCancelScheduledTransaction_Conflict(t *testing.T) {
	router, ds, _ := setupRouter(t)

	ds.On("CancelScheduledTransaction", mock.Anything, "stx_1", "usr_1").Return(
		nil, apierror.NewAPIError(apierror.ErrConflict, "Scheduled transaction is already executing and can no longer be cancelled", nil))

	resp := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodDelete,
		Route:  "/schedule?id=stx_1&user_id=usr_1",
	})

	assert.Equal(t, http.StatusConflict, resp.Code)
	ds.AssertExpectations(t)
}

func TestCancelScheduledTransaction_Idempotent(t *testing.T) {
	router, ds, _ := setupRouter(t)

	ds.On("CancelScheduledTransaction", mock.Anything, "stx_1", "usr_1").Return(
		&model.ScheduledTransaction{ScheduledTxID: "stx_1", Status: model.StatusCancelled}, nil)

	resp := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodDelete,
		Route:  "/schedule?id=stx_1&user_id=usr_1",
	})

	assert.Equal(t, http.StatusOK, resp.Code)
	var cancelled model.ScheduledTransaction
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&cancelled))
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
}

func TestGetKMSPublicKey(t *testing.T) {
	router, _, _ := setupRouter(t)

	resp := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodGet,
		Route:  "/kms/public-key",
	})

	assert.Equal(t, http.StatusOK, resp.Code)
	var body map[string]interface{}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["public_key"], "BEGIN PUBLIC KEY")
	assert.Equal(t, float64(1), body["key_version"])
}

func TestKMSHealth(t *testing.T) {
	router, _, _ := setupRouter(t)

	resp := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodGet,
		Route:  "/health/kms",
	})

	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestSecretKeyAuth(t *testing.T) {
	config.MockConfig(&config.Configuration{
		Server: config.ServerConfig{Secure: true, SecretKey: "test-secret"},
	})

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.NoError(t, err)
	kmsService, err := kms.NewLocalService(priv, 1)
	assert.NoError(t, err)

	ds := new(mocks.MockDataSource)
	service := schedvault.NewSchedvaultWithDependencies(ds, kms.NewPublicOnly(kmsService), schedvault.UnsupportedBroadcaster{})
	router := NewAPI(service).Router()

	resp := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodGet,
		Route:  "/kms/public-key",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodGet,
		Route:  "/kms/public-key",
		Header: map[string]string{"X-Schedvault-Key": "test-secret"},
	})
	assert.Equal(t, http.StatusOK, resp.Code)
}
