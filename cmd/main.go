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

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/carebridge/settlement"
	"github.com/carebridge/settlement/config"
	"github.com/carebridge/settlement/database"
	"github.com/carebridge/settlement/internal/notification"
)

// Carebridge represents the CLI application, encapsulating the root Cobra command.
type Carebridge struct {
	cmd *cobra.Command
}

// engineInstance holds the settlement Engine and its configuration, shared
// across all subcommands.
type engineInstance struct {
	engine *settlement.Engine
	cnf    *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun sets up the configuration and initializes the engine before running
// any command.
func preRun(app *engineInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("settlement.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newEngine, err := setupEngine(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.engine = newEngine
		app.cnf = cnf

		return nil
	}
}

// setupEngine creates and initializes a settlement Engine from the provided
// configuration, connecting to the data source on the way.
func setupEngine(cfg *config.Configuration) (*settlement.Engine, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newEngine, err := settlement.NewEngine(db)
	if err != nil {
		return nil, fmt.Errorf("error creating settlement engine: %v", err)
	}
	return newEngine, nil
}

// NewCLI creates the command-line interface for the settlement application.
func NewCLI() *Carebridge {
	var configFile string
	b := &engineInstance{}

	var rootCmd = &cobra.Command{
		Use:   "settlement",
		Short: "Carebridge settlement engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./settlement.json", "Configuration file for the settlement engine")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))

	return &Carebridge{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during
// execution.
func (w Carebridge) executeCLI() {
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
