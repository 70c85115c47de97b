/*
Copyright 2024 Carebridge Authors.

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

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/carebridge/settlement/pricing"
)

const (
	DEFAULT_PORT = "5401"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"CAREBRIDGE_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"CAREBRIDGE_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"CAREBRIDGE_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"CAREBRIDGE_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"CAREBRIDGE_REDIS_DNS"`
}

// TransferProviderConfig describes the external transfer API money is moved
// through. The provider must support idempotency keys as a first-class
// request parameter; one that does not is not a valid integration target.
type TransferProviderConfig struct {
	Url                string `json:"url" envconfig:"CAREBRIDGE_TRANSFER_PROVIDER_URL"`
	ApiKey             string `json:"api_key" envconfig:"CAREBRIDGE_TRANSFER_PROVIDER_API_KEY"`
	CallTimeoutSec     int    `json:"call_timeout_sec" envconfig:"CAREBRIDGE_TRANSFER_CALL_TIMEOUT_SEC"`
	MaxRetryElapsedSec int    `json:"max_retry_elapsed_sec" envconfig:"CAREBRIDGE_TRANSFER_MAX_RETRY_ELAPSED_SEC"`
}

type QueueConfig struct {
	WebhookQueue        string `json:"webhook_queue" envconfig:"CAREBRIDGE_QUEUE_WEBHOOK"`
	ReconciliationQueue string `json:"reconciliation_queue" envconfig:"CAREBRIDGE_QUEUE_RECONCILIATION"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"CAREBRIDGE_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"CAREBRIDGE_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"CAREBRIDGE_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName      string                 `json:"project_name" envconfig:"CAREBRIDGE_PROJECT_NAME"`
	Server           ServerConfig           `json:"server"`
	DataSource       DataSourceConfig       `json:"data_source"`
	Redis            RedisConfig            `json:"redis"`
	TransferProvider TransferProviderConfig `json:"transfer_provider"`
	Pricing          pricing.Config         `json:"pricing"`
	Queue            QueueConfig            `json:"queue"`
	Notification     Notification           `json:"notification"`
	RateLimit        RateLimitConfig        `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("carebridge", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called settlement.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Carebridge Settlement"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.TransferProvider.Url == "" {
		log.Println("Error: Transfer provider URL is empty. It's a required field.")
		return errors.New("transfer provider URL is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.TransferProvider.Url = strings.TrimSpace(cnf.TransferProvider.Url)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	// A lock is held across the external transfer call, so the call must
	// always carry a deadline.
	if cnf.TransferProvider.CallTimeoutSec <= 0 {
		cnf.TransferProvider.CallTimeoutSec = 5
		log.Printf("Warning: Transfer call timeout not specified. Setting default value: %ds", cnf.TransferProvider.CallTimeoutSec)
	}
	if cnf.TransferProvider.MaxRetryElapsedSec <= 0 {
		cnf.TransferProvider.MaxRetryElapsedSec = cnf.TransferProvider.CallTimeoutSec
	}

	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "new:webhook"
	}
	if cnf.Queue.ReconciliationQueue == "" {
		cnf.Queue.ReconciliationQueue = "new:reconciliation"
	}

	if cnf.Pricing.Version == "" {
		cnf.Pricing.Version = "v0"
	}
	if cnf.Pricing.Currency == "" {
		cnf.Pricing.Currency = "USD"
	}
	if cnf.Pricing.HourlyRates == nil {
		cnf.Pricing.HourlyRates = map[string]float64{}
	}
	if cnf.Pricing.BillingRates == nil {
		cnf.Pricing.BillingRates = map[string]float64{}
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
