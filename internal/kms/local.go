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

package kms

import (
	"context"
	"crypto/rsa"
	"fmt"

	"github.com/blazewallet/schedvault/config"
	"github.com/blazewallet/schedvault/internal/keywrap"
)

// localService holds the RSA private key in process memory, loaded from a
// PEM in configuration. Development and test use only; production runs the
// AWS backend so the private key never exists outside KMS.
type localService struct {
	priv       *rsa.PrivateKey
	publicPem  string
	keyVersion int
}

func newLocalService(cnf *config.Configuration) (*localService, error) {
	if cnf.KMS.PrivateKeyPem == "" {
		return nil, fmt.Errorf("%w: local backend requires a private key PEM", ErrKeyRetrieval)
	}

	priv, err := keywrap.ParsePrivateKey(cnf.KMS.PrivateKeyPem)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyRetrieval, err)
	}

	publicPem, err := keywrap.MarshalPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyRetrieval, err)
	}

	return &localService{
		priv:       priv,
		publicPem:  publicPem,
		keyVersion: cnf.KMS.KeyVersion,
	}, nil
}

// NewLocalService builds a local service from an existing private key.
// Test constructor.
func NewLocalService(priv *rsa.PrivateKey, keyVersion int) (Service, error) {
	publicPem, err := keywrap.MarshalPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &localService{priv: priv, publicPem: publicPem, keyVersion: keyVersion}, nil
}

func (s *localService) GetPublicKey(_ context.Context) (string, error) {
	return s.publicPem, nil
}

func (s *localService) DecryptEnvelopeKey(_ context.Context, wrapped []byte) ([]byte, error) {
	key, err := keywrap.Unwrap(wrapped, s.priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return key, nil
}

func (s *localService) KeyVersion() int {
	return s.keyVersion
}

func (s *localService) TestConnection(_ context.Context) bool {
	return s.priv != nil
}
