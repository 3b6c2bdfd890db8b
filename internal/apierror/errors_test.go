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

package apierror_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/blazewallet/schedvault/internal/apierror"
	"github.com/stretchr/testify/assert"
)

func TestNewAPIError(t *testing.T) {
	details := "kms returned AccessDeniedException"
	apiErr := apierror.NewAPIError(apierror.ErrDependencyFailure, "Key service unavailable", details)

	assert.Equal(t, apierror.ErrDependencyFailure, apiErr.Code)
	assert.Equal(t, "Key service unavailable", apiErr.Message)
	assert.Equal(t, details, apiErr.Details)
	assert.Equal(t, "DEPENDENCY_FAILURE: Key service unavailable", apiErr.Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, apierror.IsRetryable(apierror.NewAPIError(apierror.ErrDependencyFailure, "timeout", nil)))
	assert.False(t, apierror.IsRetryable(apierror.NewAPIError(apierror.ErrCryptoFailure, "bad tag", nil)))
	assert.False(t, apierror.IsRetryable(errors.New("plain error")))
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "NotFound Error",
			err:      apierror.NewAPIError(apierror.ErrNotFound, "Record not found", nil),
			expected: http.StatusNotFound,
		},
		{
			name:     "Conflict Error",
			err:      apierror.NewAPIError(apierror.ErrConflict, "Already executing", nil),
			expected: http.StatusConflict,
		},
		{
			name:     "InvalidInput Error",
			err:      apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid input", nil),
			expected: http.StatusBadRequest,
		},
		{
			name:     "Dependency Error",
			err:      apierror.NewAPIError(apierror.ErrDependencyFailure, "KMS unreachable", nil),
			expected: http.StatusServiceUnavailable,
		},
		{
			name:     "Crypto Error",
			err:      apierror.NewAPIError(apierror.ErrCryptoFailure, "Decryption failed", nil),
			expected: http.StatusInternalServerError,
		},
		{
			name:     "Unknown Error",
			err:      errors.New("unknown"),
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, apierror.MapErrorToHTTPStatus(tt.err))
		})
	}
}
