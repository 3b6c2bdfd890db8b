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

package schedvault

import (
	"context"
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/blazewallet/schedvault/config"
	"github.com/blazewallet/schedvault/database"
	"github.com/blazewallet/schedvault/internal/kms"
	"github.com/blazewallet/schedvault/internal/redisdb"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// Schedvault is the scheduled-transaction service. The API server and the
// execution worker both run on top of it; the difference between them is
// the KMS service they are constructed with. A server process gets a
// public-only service and can therefore never unwrap an envelope key.
type Schedvault struct {
	queue       expiryQueue
	redis       redis.UniversalClient
	datasource  database.IDataSource
	kms         kms.Service
	broadcaster Broadcaster
}

// NewSchedvault wires a service instance from configuration. The KMS
// service is passed in rather than built here so each process decides its
// own trust level (kms.NewService for workers, kms.NewPublicOnly for the
// API).
func NewSchedvault(db database.IDataSource, kmsService kms.Service, broadcaster Broadcaster) (*Schedvault, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redisdb.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)
	s := NewSchedvaultWithDependencies(db, kmsService, broadcaster)
	s.queue = newQueue
	s.redis = redisClient.Client()
	return s, nil
}

// NewSchedvaultWithDependencies wires a service from explicit parts,
// without redis or a task queue. Expiry then rests entirely on the
// periodic sweep. Used by processes that bring their own queue wiring and
// by tests.
func NewSchedvaultWithDependencies(db database.IDataSource, kmsService kms.Service, broadcaster Broadcaster) *Schedvault {
	return &Schedvault{
		datasource:  db,
		kms:         kmsService,
		broadcaster: broadcaster,
	}
}

// KMSPublicKey returns the wrapping public key and its version for clients
// that encrypt locally before calling Schedule.
func (s *Schedvault) KMSPublicKey(ctx context.Context) (string, int, error) {
	publicKey, err := s.kms.GetPublicKey(ctx)
	if err != nil {
		return "", 0, err
	}
	return publicKey, s.kms.KeyVersion(), nil
}

// KMSHealthy reports whether the backing key service is reachable.
func (s *Schedvault) KMSHealthy(ctx context.Context) bool {
	return s.kms.TestConnection(ctx)
}
