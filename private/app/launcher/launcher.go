// Copyright 2020 Anapaya Systems
// Copyright 2026 The pktpipe Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package launcher contains the harness shared by the pktpipe binaries:
// command line parsing, configuration loading, logging setup and signal
// handling.
package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pktpipe/pktpipe/pkg/log"
	"github.com/pktpipe/pktpipe/pkg/metrics/v2"
	"github.com/pktpipe/pktpipe/pkg/private/serrors"
	"github.com/pktpipe/pktpipe/private/app/command"
	"github.com/pktpipe/pktpipe/private/app/flag"
	libconfig "github.com/pktpipe/pktpipe/private/config"
	"github.com/pktpipe/pktpipe/private/env"
)

// Configuration keys used by the launcher.
const (
	cfgLogConsoleLevel           = "log.console.level"
	cfgLogConsoleFormat          = "log.console.format"
	cfgLogConsoleStacktraceLevel = "log.console.stacktrace_level"
	cfgGeneralID                 = "general.id"
	cfgConfigFile                = "config"
)

// EnvPrefix prefixes the environment variables that override configuration
// keys, e.g. PKTPIPE_CONFIG or PKTPIPE_LOG_CONSOLE_LEVEL.
const EnvPrefix = "PKTPIPE"

// FeatureConfig is implemented by configurations that accept the features
// given with the --features flag.
type FeatureConfig interface {
	EnableFeatures(names []string)
}

// Application models a pktpipe application.
type Application struct {
	// TOMLConfig holds the Go data structure for the application-specific
	// TOML configuration. If it implements FeatureConfig, the features from
	// the command line are added before validation.
	TOMLConfig libconfig.Config

	// Samplers contains additional configuration samplers to be included
	// under the sample subcommand.
	Samplers []func(command.Pather) *cobra.Command

	// Commands are additional subcommands. They can call LoadConfig to use
	// the configuration.
	Commands []func(command.Pather) *cobra.Command

	// ShortName is the short name of the application. If empty, the
	// executable name is used.
	ShortName string

	// Main is the custom logic of the application. If nil, no custom logic is
	// executed (and only the setup/teardown harness runs). If Main returns an
	// error, the Run method will return a non-zero exit code.
	Main func(ctx context.Context) error

	// ErrorWriter specifies where error output should be printed. If nil,
	// os.Stderr is used.
	ErrorWriter io.Writer

	config   *viper.Viper
	features flag.Features
}

// Run sets up the common harness, and then passes control to the Main
// function (if one exists). The context passed to Main is canceled on
// SIGINT or SIGTERM.
//
// Run will exit the application if it encounters a fatal error.
func (a *Application) Run() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := a.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(a.getErrorWriter(), "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// Execute runs the application with the given command line arguments.
func (a *Application) Execute(ctx context.Context, args []string) error {
	executable := filepath.Base(os.Args[0])
	shortName := a.getShortName(executable)

	cmd := a.newCommand(executable, shortName)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return a.executeCommand(cmd.Context(), shortName)
	}
	a.config = viper.New()
	a.config.SetDefault(cfgLogConsoleLevel, log.DefaultConsoleLevel)
	a.config.SetDefault(cfgLogConsoleFormat, "human")
	a.config.SetDefault(cfgLogConsoleStacktraceLevel, log.DefaultStacktraceLevel)
	a.config.SetDefault(cfgGeneralID, executable)
	a.config.SetEnvPrefix(EnvPrefix)
	a.config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.config.AutomaticEnv()
	// The configuration file location is specified through command-line flags.
	// Once the command-line flags are parsed, we register the location of the
	// config file with the viper config.
	if err := a.config.BindPFlag(cfgConfigFile,
		cmd.PersistentFlags().Lookup(cfgConfigFile)); err != nil {
		return err
	}
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func (a *Application) newCommand(executable, shortName string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           executable,
		Short:         shortName,
		Example:       fmt.Sprintf("  %s --config %s", executable, "pktpipe.toml"),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
	}
	samplers := append([]func(command.Pather) *cobra.Command{
		command.NewSampleConfig(a.TOMLConfig),
	}, a.Samplers...)
	cmd.AddCommand(
		command.NewCompletion(cmd),
		command.NewSample(cmd, samplers...),
		command.NewVersion(cmd),
		command.NewGendocs(cmd),
	)
	for _, f := range a.Commands {
		cmd.AddCommand(f(cmd))
	}
	cmd.PersistentFlags().String(cfgConfigFile, "",
		"Configuration file (required, env "+EnvPrefix+"_CONFIG)")
	a.features.Register(cmd.PersistentFlags())
	return cmd
}

// ConfigFile returns the path of the configuration file.
func (a *Application) ConfigFile() string {
	return a.config.GetString(cfgConfigFile)
}

// LoadConfig loads, completes and validates the configuration.
func (a *Application) LoadConfig() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if err := a.TOMLConfig.Validate(); err != nil {
		return serrors.Wrap("validate config", err)
	}
	return nil
}

func (a *Application) loadConfig() error {
	file := a.ConfigFile()
	if file == "" {
		return serrors.New("no configuration file given",
			"flag", "--"+cfgConfigFile, "env", EnvPrefix+"_CONFIG")
	}
	// Load launcher configurations from the same config file as the custom
	// application configuration.
	a.config.SetConfigType("toml")
	a.config.SetConfigFile(file)
	if err := a.config.ReadInConfig(); err != nil {
		return serrors.Wrap("loading generic server config from file", err, "file", file)
	}
	if err := libconfig.LoadFile(file, a.TOMLConfig); err != nil {
		return serrors.Wrap("loading config from file", err, "file", file)
	}
	a.TOMLConfig.InitDefaults()
	if fc, ok := a.TOMLConfig.(FeatureConfig); ok && len(a.features.Names()) > 0 {
		fc.EnableFeatures(a.features.Names())
	}
	return nil
}

func (a *Application) getShortName(executable string) string {
	if a.ShortName != "" {
		return a.ShortName
	}
	return executable
}

func (a *Application) executeCommand(ctx context.Context, shortName string) error {
	os.Setenv("TZ", "UTC")

	if err := a.loadConfig(); err != nil {
		return err
	}

	factory := metrics.ApplyOptions().Auto()
	logEntriesTotal := factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "log",
			Name:      "emitted_entries_total",
			Help:      "Total number of log entries emitted.",
		},
		[]string{"level"},
	)
	opt := log.WithEntriesCounter(log.EntriesCounter{
		Debug: logEntriesTotal.With(prometheus.Labels{"level": "debug"}),
		Info:  logEntriesTotal.With(prometheus.Labels{"level": "info"}),
		Warn:  logEntriesTotal.With(prometheus.Labels{"level": "warn"}),
		Error: logEntriesTotal.With(prometheus.Labels{"level": "error"}),
	})
	if err := log.Setup(a.getLogging(), opt); err != nil {
		return serrors.Wrap("initialize logging", err)
	}
	defer log.Flush()

	id := a.config.GetString(cfgGeneralID)
	if err := env.LogAppStarted(shortName, id); err != nil {
		return err
	}
	defer env.LogAppStopped(shortName, id)
	defer log.HandlePanic()

	exportBuildInfo(factory, id)
	if err := a.TOMLConfig.Validate(); err != nil {
		return serrors.Wrap("validate config", err)
	}

	if a.Main == nil {
		return nil
	}
	err := a.Main(ctx)
	if ctx.Err() != nil {
		log.Info("Shutdown requested", "cause", context.Cause(ctx))
	}
	return err
}

func (a *Application) getLogging() log.Config {
	return log.Config{
		Console: log.ConsoleConfig{
			Level:           a.config.GetString(cfgLogConsoleLevel),
			Format:          a.config.GetString(cfgLogConsoleFormat),
			StacktraceLevel: a.config.GetString(cfgLogConsoleStacktraceLevel),
		},
	}
}

func (a *Application) getErrorWriter() io.Writer {
	if a.ErrorWriter != nil {
		return a.ErrorWriter
	}
	return os.Stderr
}

// exportBuildInfo exposes the version of the binary and the instance id as
// constant gauge.
func exportBuildInfo(factory metrics.Factory, id string) {
	factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Name:      "build_info",
			Help:      "Build information of the running binary, the value is always 1.",
		},
		[]string{"version", "go_version", "id"},
	).With(prometheus.Labels{
		"version":    env.StartupVersion,
		"go_version": runtime.Version(),
		"id":         id,
	}).Set(1)
}
