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

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blazewallet/schedvault"
	"github.com/blazewallet/schedvault/config"
	"github.com/blazewallet/schedvault/database"
	"github.com/blazewallet/schedvault/internal/cache"
	"github.com/blazewallet/schedvault/internal/kms"
	"github.com/blazewallet/schedvault/internal/notification"
)

// Schedvault represents the CLI application, encapsulating the root Cobra command.
type Schedvault struct {
	cmd *cobra.Command
}

// schedvaultInstance holds the runtime service instance and its configuration,
// shared by the server, worker, and migration commands.
type schedvaultInstance struct {
	service *schedvault.Schedvault
	cnf     *config.Configuration
	// kmsPrivileged is true for processes allowed to unwrap envelope keys.
	// Only the worker command sets it.
	kmsPrivileged bool
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads configuration and initializes the service before any command
// runs. The KMS trust level depends on which command is executing: the API
// server always gets a public-only service.
func preRun(app *schedvaultInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("schedvault.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		app.kmsPrivileged = cmd.Name() == "workers"

		newService, err := setupSchedvault(cnf, app.kmsPrivileged)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.service = newService
		app.cnf = cnf

		return nil
	}
}

// setupSchedvault creates the service from configuration. privileged
// controls whether the process can call KMS decrypt.
func setupSchedvault(cfg *config.Configuration, privileged bool) (*schedvault.Schedvault, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	cacheClient, err := cache.NewCache()
	if err != nil {
		return nil, fmt.Errorf("error creating cache: %v", err)
	}

	kmsService, err := kms.NewService(cfg, cacheClient)
	if err != nil {
		return nil, fmt.Errorf("error creating kms service: %v", err)
	}
	if !privileged {
		kmsService = kms.NewPublicOnly(kmsService)
	}

	newService, err := schedvault.NewSchedvault(db, kmsService, schedvault.UnsupportedBroadcaster{})
	if err != nil {
		return nil, fmt.Errorf("error creating schedvault: %v", err)
	}
	return newService, nil
}

// NewCLI creates the command-line interface for the scheduling service.
func NewCLI() *Schedvault {
	var configFile string
	b := &schedvaultInstance{}

	var rootCmd = &cobra.Command{
		Use:   "schedvault",
		Short: "Time-locked scheduled transaction vault",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./schedvault.json", "Configuration file for schedvault")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))

	return &Schedvault{cmd: rootCmd}
}

func (w Schedvault) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
