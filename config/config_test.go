package config

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfig_FromFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "schedvault*.json")
	require.NoError(t, err)

	cnf := Configuration{
		ProjectName: "test-vault",
		DataSource:  DataSourceConfig{Dns: "postgres://postgres:@localhost:5432/schedvault?sslmode=disable"},
		KMS:         KMSConfig{KeyAlias: "alias/test-scheduled-tx"},
	}
	require.NoError(t, json.NewEncoder(f).Encode(&cnf))
	require.NoError(t, f.Close())

	require.NoError(t, InitConfig(f.Name()))

	loaded, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "test-vault", loaded.ProjectName)
	assert.Equal(t, "alias/test-scheduled-tx", loaded.KMS.KeyAlias)
}

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := &Configuration{}
	require.NoError(t, cnf.validateAndAddDefaults())

	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, "aws", cnf.KMS.Backend)
	assert.Equal(t, "us-east-1", cnf.KMS.Region)
	assert.Equal(t, 1, cnf.KMS.KeyVersion)
	assert.Equal(t, 50, cnf.Worker.BatchLimit)
	assert.Equal(t, 3, cnf.Worker.MaxRetryAttempts)
	assert.Equal(t, 24, cnf.Worker.DefaultMaxWaitHours)
	assert.Equal(t, 15*time.Minute, cnf.ClaimGrace())
	assert.Equal(t, 10*time.Second, cnf.KMSCallTimeout())
	assert.Equal(t, "schedvault_expiry", cnf.Worker.ExpiryQueue)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SCHEDVAULT_WORKER_MAX_RETRY_ATTEMPTS", "5")
	t.Setenv("SCHEDVAULT_KMS_KEY_ALIAS", "alias/rotated")

	require.NoError(t, loadConfigFromFile(""))

	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, 5, cnf.Worker.MaxRetryAttempts)
	assert.Equal(t, "alias/rotated", cnf.KMS.KeyAlias)
}

func TestMockConfig(t *testing.T) {
	MockConfig(&Configuration{ProjectName: "mocked"})
	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "mocked", cnf.ProjectName)
	// defaults still applied on the mock path
	assert.Equal(t, 50, cnf.Worker.BatchLimit)
}
