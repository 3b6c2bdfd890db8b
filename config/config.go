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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"SCHEDVAULT_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"SCHEDVAULT_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"SCHEDVAULT_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"SCHEDVAULT_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"SCHEDVAULT_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"SCHEDVAULT_REDIS_SKIP_TLS_VERIFY"`
}

// KMSConfig points at the key-management system holding the RSA key pair
// used to wrap envelope keys. Backend selects the implementation:
// "aws" talks to AWS KMS, "local" loads PrivateKeyPem (development only).
type KMSConfig struct {
	Backend         string `json:"backend" envconfig:"SCHEDVAULT_KMS_BACKEND"`
	Region          string `json:"region" envconfig:"SCHEDVAULT_AWS_REGION"`
	AccessKeyID     string `json:"access_key_id" envconfig:"SCHEDVAULT_AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"secret_access_key" envconfig:"SCHEDVAULT_AWS_SECRET_ACCESS_KEY"`
	KeyAlias        string `json:"key_alias" envconfig:"SCHEDVAULT_KMS_KEY_ALIAS"`
	KeyVersion      int    `json:"key_version" envconfig:"SCHEDVAULT_KMS_KEY_VERSION"`
	PrivateKeyPem   string `json:"private_key_pem" envconfig:"SCHEDVAULT_KMS_PRIVATE_KEY_PEM"`
	PublicKeyTTLSec int    `json:"public_key_ttl_sec" envconfig:"SCHEDVAULT_KMS_PUBLIC_KEY_TTL_SEC"`
	CallTimeoutSec  int    `json:"call_timeout_sec" envconfig:"SCHEDVAULT_KMS_CALL_TIMEOUT_SEC"`
}

// WorkerConfig bounds the execution worker: how many due records one pass
// may claim, the retry budget per record, and how long a stale executing
// claim is honored before a later pass may reclaim it.
type WorkerConfig struct {
	BatchLimit          int    `json:"batch_limit" envconfig:"SCHEDVAULT_WORKER_BATCH_LIMIT"`
	MaxRetryAttempts    int    `json:"max_retry_attempts" envconfig:"SCHEDVAULT_WORKER_MAX_RETRY_ATTEMPTS"`
	BackoffBaseMs       int    `json:"backoff_base_ms" envconfig:"SCHEDVAULT_WORKER_BACKOFF_BASE_MS"`
	ClaimGraceMin       int    `json:"claim_grace_min" envconfig:"SCHEDVAULT_WORKER_CLAIM_GRACE_MIN"`
	DefaultMaxWaitHours int    `json:"default_max_wait_hours" envconfig:"SCHEDVAULT_WORKER_DEFAULT_MAX_WAIT_HOURS"`
	BroadcastTimeoutSec int    `json:"broadcast_timeout_sec" envconfig:"SCHEDVAULT_WORKER_BROADCAST_TIMEOUT_SEC"`
	ExecuteCronSpec     string `json:"execute_cron_spec" envconfig:"SCHEDVAULT_WORKER_EXECUTE_CRON_SPEC"`
	SweepCronSpec       string `json:"sweep_cron_spec" envconfig:"SCHEDVAULT_WORKER_SWEEP_CRON_SPEC"`
	ExpiryQueue         string `json:"expiry_queue" envconfig:"SCHEDVAULT_WORKER_EXPIRY_QUEUE"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"SCHEDVAULT_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"SCHEDVAULT_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"SCHEDVAULT_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"SCHEDVAULT_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"SCHEDVAULT_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	KMS          KMSConfig        `json:"kms"`
	Worker       WorkerConfig     `json:"worker"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
	Notification Notification     `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config file with env variables
	err = envconfig.Process("schedvault", &cnf)
	if err != nil {
		logrus.Error(err)
		return err
	}

	if err := cnf.validateAndAddDefaults(); err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		log.Println("config not loaded from file. Loading from env")
		err := loadConfigFromFile("")
		if err != nil {
			return nil, err
		}
		return Fetch()
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.DataSource.Dns == "" {
		log.Println("Warning: Data source DNS is empty. Setting default value.")
		cnf.DataSource.Dns = "postgres://postgres:@localhost:5432/schedvault?sslmode=disable"
	}

	if cnf.ProjectName == "" {
		cnf.ProjectName = "Schedvault"
	}

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.KMS.Backend == "" {
		cnf.KMS.Backend = "aws"
	}
	if cnf.KMS.Region == "" {
		cnf.KMS.Region = "us-east-1"
	}
	if cnf.KMS.KeyAlias == "" {
		cnf.KMS.KeyAlias = "alias/blaze-scheduled-tx"
	}
	if cnf.KMS.KeyVersion == 0 {
		cnf.KMS.KeyVersion = 1
	}
	if cnf.KMS.PublicKeyTTLSec == 0 {
		cnf.KMS.PublicKeyTTLSec = 300
	}
	if cnf.KMS.CallTimeoutSec == 0 {
		cnf.KMS.CallTimeoutSec = 10
	}

	if cnf.Worker.BatchLimit == 0 {
		cnf.Worker.BatchLimit = 50
	}
	if cnf.Worker.MaxRetryAttempts == 0 {
		cnf.Worker.MaxRetryAttempts = 3
	}
	if cnf.Worker.BackoffBaseMs == 0 {
		cnf.Worker.BackoffBaseMs = 500
	}
	if cnf.Worker.ClaimGraceMin == 0 {
		cnf.Worker.ClaimGraceMin = 15
	}
	if cnf.Worker.DefaultMaxWaitHours == 0 {
		cnf.Worker.DefaultMaxWaitHours = 24
	}
	if cnf.Worker.BroadcastTimeoutSec == 0 {
		cnf.Worker.BroadcastTimeoutSec = 60
	}
	if cnf.Worker.ExecuteCronSpec == "" {
		cnf.Worker.ExecuteCronSpec = "* * * * *"
	}
	if cnf.Worker.SweepCronSpec == "" {
		cnf.Worker.SweepCronSpec = "*/5 * * * *"
	}
	if cnf.Worker.ExpiryQueue == "" {
		cnf.Worker.ExpiryQueue = "schedvault_expiry"
	}

	// Trim white spaces from connection strings
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	return nil
}

func (cnf *Configuration) ClaimGrace() time.Duration {
	return time.Duration(cnf.Worker.ClaimGraceMin) * time.Minute
}

func (cnf *Configuration) KMSCallTimeout() time.Duration {
	return time.Duration(cnf.KMS.CallTimeoutSec) * time.Second
}

func (cnf *Configuration) BroadcastTimeout() time.Duration {
	return time.Duration(cnf.Worker.BroadcastTimeoutSec) * time.Second
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	if err := mockConfig.validateAndAddDefaults(); err != nil {
		logrus.Error(err)
		return
	}
	ConfigStore.Store(mockConfig)
}
