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
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/sirupsen/logrus"

	"github.com/blazewallet/schedvault/config"
	"github.com/blazewallet/schedvault/internal/cache"
	"github.com/blazewallet/schedvault/internal/keywrap"
)

// kmsAPI is the slice of the AWS KMS client the service uses. Kept as an
// interface so tests can stub the backing service.
type kmsAPI interface {
	GetPublicKey(ctx context.Context, params *awskms.GetPublicKeyInput, optFns ...func(*awskms.Options)) (*awskms.GetPublicKeyOutput, error)
	Decrypt(ctx context.Context, params *awskms.DecryptInput, optFns ...func(*awskms.Options)) (*awskms.DecryptOutput, error)
}

// awsService talks to AWS KMS. The asymmetric key pair lives in KMS; the
// private key never leaves it. Unwraps happen inside KMS via the Decrypt
// operation with the RSA-OAEP-SHA256 algorithm identifier.
type awsService struct {
	client      kmsAPI
	keyAlias    string
	keyVersion  int
	cache       cache.Cache
	keyTTL      time.Duration
	callTimeout time.Duration
}

func newAWSService(cnf *config.Configuration, ca cache.Cache) (*awsService, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cnf.KMS.Region),
	}
	if cnf.KMS.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cnf.KMS.AccessKeyID, cnf.KMS.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyRetrieval, err)
	}

	return &awsService{
		client:      awskms.NewFromConfig(awsCfg),
		keyAlias:    cnf.KMS.KeyAlias,
		keyVersion:  cnf.KMS.KeyVersion,
		cache:       ca,
		keyTTL:      time.Duration(cnf.KMS.PublicKeyTTLSec) * time.Second,
		callTimeout: cnf.KMSCallTimeout(),
	}, nil
}

func (s *awsService) GetPublicKey(ctx context.Context) (string, error) {
	return cachedPublicKey(ctx, s.cache, s.keyTTL, s.fetchPublicKey)
}

func (s *awsService) fetchPublicKey(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	out, err := s.client.GetPublicKey(ctx, &awskms.GetPublicKeyInput{
		KeyId: aws.String(s.keyAlias),
	})
	if err != nil {
		logrus.Errorf("kms GetPublicKey failed for %s: %v", s.keyAlias, err)
		return "", fmt.Errorf("%w: %v", ErrKeyRetrieval, err)
	}
	if len(out.PublicKey) == 0 {
		return "", ErrKeyRetrieval
	}

	return keywrap.PublicKeyPemFromDER(out.PublicKey), nil
}

func (s *awsService) DecryptEnvelopeKey(ctx context.Context, wrapped []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	out, err := s.client.Decrypt(ctx, &awskms.DecryptInput{
		KeyId:               aws.String(s.keyAlias),
		CiphertextBlob:      wrapped,
		EncryptionAlgorithm: types.EncryptionAlgorithmSpecRsaesOaepSha256,
	})
	if err != nil {
		logrus.Errorf("kms Decrypt failed for %s: %v", s.keyAlias, err)
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if len(out.Plaintext) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrDecryption)
	}

	return out.Plaintext, nil
}

func (s *awsService) KeyVersion() int {
	return s.keyVersion
}

// TestConnection is an operational health check only, never part of a
// correctness-critical path.
func (s *awsService) TestConnection(ctx context.Context) bool {
	if _, err := s.fetchPublicKey(ctx); err != nil {
		logrus.Warnf("kms connection test failed: %v", err)
		return false
	}
	return true
}
