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

// Package kms is the only component with access to the private unwrapping
// key. Everything else in the system sees at most the public key. The
// decrypt path must never be reachable from a client-facing process: the
// API server constructs its service with NewPublicOnly.
package kms

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blazewallet/schedvault/config"
	"github.com/blazewallet/schedvault/internal/cache"
)

var (
	// ErrKeyRetrieval means the backing key service is unreachable or
	// misconfigured. A hard dependency failure: without the public key no
	// new transactions can be scheduled, so it is never silently degraded.
	ErrKeyRetrieval = errors.New("kms: public key retrieval failed")

	// ErrDecryption covers any backing-service decrypt failure (key
	// disabled, permission denied, corrupted ciphertext). Callers retry
	// it according to the worker's retry policy.
	ErrDecryption = errors.New("kms: failed to decrypt envelope key")

	// ErrDecryptForbidden is returned by public-only services. Reaching
	// it means a client-facing process tried to unwrap.
	ErrDecryptForbidden = errors.New("kms: decrypt is not permitted in this process")
)

// Service is the KMS boundary. GetPublicKey is safe to expose to any
// authenticated client; DecryptEnvelopeKey must only run in the worker.
type Service interface {
	GetPublicKey(ctx context.Context) (string, error)
	DecryptEnvelopeKey(ctx context.Context, wrapped []byte) ([]byte, error)
	KeyVersion() int
	TestConnection(ctx context.Context) bool
}

const publicKeyCacheKey = "kms:public_key"

// NewService builds a decrypt-capable service from configuration. Only the
// worker process calls this.
func NewService(cnf *config.Configuration, ca cache.Cache) (Service, error) {
	switch cnf.KMS.Backend {
	case "local":
		return newLocalService(cnf)
	default:
		return newAWSService(cnf, ca)
	}
}

// NewPublicOnly wraps a service so that unwrap attempts fail. The API
// server holds one of these: it can hand out the public key and run health
// checks but can never recover an envelope key.
func NewPublicOnly(svc Service) Service {
	return &publicOnlyService{inner: svc}
}

type publicOnlyService struct {
	inner Service
}

func (p *publicOnlyService) GetPublicKey(ctx context.Context) (string, error) {
	return p.inner.GetPublicKey(ctx)
}

func (p *publicOnlyService) DecryptEnvelopeKey(_ context.Context, _ []byte) ([]byte, error) {
	logrus.Error("refused envelope key decrypt outside the worker process")
	return nil, ErrDecryptForbidden
}

func (p *publicOnlyService) KeyVersion() int {
	return p.inner.KeyVersion()
}

func (p *publicOnlyService) TestConnection(ctx context.Context) bool {
	return p.inner.TestConnection(ctx)
}

// cachedPublicKey consults the cache before hitting the backing service,
// then stores the fetched PEM with the configured TTL. Cache failures fall
// through to a live fetch.
func cachedPublicKey(ctx context.Context, ca cache.Cache, ttl time.Duration, fetch func(context.Context) (string, error)) (string, error) {
	if ca != nil {
		var pem string
		if err := ca.Get(ctx, publicKeyCacheKey, &pem); err == nil && pem != "" {
			return pem, nil
		}
	}

	pem, err := fetch(ctx)
	if err != nil {
		return "", err
	}

	if ca != nil {
		if err := ca.Set(ctx, publicKeyCacheKey, pem, ttl); err != nil {
			logrus.Warnf("failed to cache kms public key: %v", err)
		}
	}
	return pem, nil
}
