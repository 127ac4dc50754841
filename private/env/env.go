// Copyright 2018 ETH Zurich, Anapaya Systems
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

// Package env contains the config blocks and initialization code shared by
// pktpipe binaries. If something is specific to one app, it should go into
// that app's code and not here.
package env

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pktpipe/pktpipe/pkg/log"
	"github.com/pktpipe/pktpipe/pkg/private/serrors"
	"github.com/pktpipe/pktpipe/private/config"
)

const (
	// ShutdownGraceInterval is the time applications wait after issuing a
	// clean shutdown signal, before forcefully tearing down the application.
	ShutdownGraceInterval = 5 * time.Second

	// HandlerTimeout is the time after which the http handler gives up on a request and
	// returns an error instead.
	HandlerTimeout = time.Minute

	// DefaultAPIAddr is the default listen address of the management API.
	DefaultAPIAddr = "127.0.0.1:30480"
)

var _ config.Config = (*General)(nil)

// General holds the identity of the running instance.
type General struct {
	// ID identifies this pipeline instance in logs and metrics.
	ID string `toml:"id,omitempty"`
	// ConfigDir is the directory relative paths in the configuration (e.g.
	// pcap files) are resolved against.
	ConfigDir string `toml:"config_dir,omitempty"`
}

// InitDefaults is a no-op, there are no defaults for the general block.
func (cfg *General) InitDefaults() {}

func (cfg *General) Validate() error {
	if cfg.ID == "" {
		return serrors.New("no instance id specified")
	}
	return cfg.checkDir()
}

// checkDir checks that the config dir is a directory.
func (cfg *General) checkDir() error {
	if cfg.ConfigDir == "" {
		return nil
	}
	info, err := os.Stat(cfg.ConfigDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return serrors.New("config_dir is not a directory", "dir", cfg.ConfigDir)
	}
	return nil
}

func (cfg *General) Sample(dst io.Writer, path config.Path, ctx config.CtxMap) {
	config.WriteString(dst, fmt.Sprintf(generalSample, ctx[config.ID]))
}

func (cfg *General) ConfigName() string {
	return "general"
}

var _ config.Config = (*Metrics)(nil)

type Metrics struct {
	config.NoDefaulter
	// Prometheus contains the address to export prometheus metrics on. If
	// not set, metrics are not exported.
	Prometheus string `toml:"prometheus,omitempty"`
}

func (cfg *Metrics) Validate() error {
	if cfg.Prometheus == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Prometheus); err != nil {
		return serrors.Wrap("invalid prometheus address", err, "addr", cfg.Prometheus)
	}
	return nil
}

func (cfg *Metrics) Sample(dst io.Writer, path config.Path, _ config.CtxMap) {
	config.WriteString(dst, metricsSample)
}

func (cfg *Metrics) ConfigName() string {
	return "metrics"
}

// ServePrometheus serves the default gatherer under /metrics until ctx is
// done. It returns immediately if no address is configured.
func (cfg *Metrics) ServePrometheus(ctx context.Context) error {
	if cfg.Prometheus == "" {
		return nil
	}
	handler := promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{Timeout: HandlerTimeout},
		),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	log.Info("Exporting prometheus metrics", "addr", cfg.Prometheus)

	server := &http.Server{Addr: cfg.Prometheus, Handler: mux}
	return serve(ctx, server, "serving prometheus metrics")
}

var _ config.Config = (*API)(nil)

// API configures the management HTTP API.
type API struct {
	// Addr is the listen address. An empty value disables the API.
	Addr string `toml:"addr,omitempty"`
}

func (cfg *API) InitDefaults() {}

func (cfg *API) Validate() error {
	if cfg.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return serrors.Wrap("invalid api address", err, "addr", cfg.Addr)
	}
	return nil
}

func (cfg *API) Sample(dst io.Writer, path config.Path, _ config.CtxMap) {
	config.WriteString(dst, fmt.Sprintf(apiSample, DefaultAPIAddr))
}

func (cfg *API) ConfigName() string {
	return "api"
}

// Serve serves handler on the configured address until ctx is done.
func (cfg *API) Serve(ctx context.Context, handler http.Handler) error {
	if cfg.Addr == "" {
		return nil
	}
	log.Info("Exposing management API", "addr", cfg.Addr)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: HandlerTimeout,
	}
	return serve(ctx, server, "serving management API")
}

func serve(ctx context.Context, server *http.Server, what string) error {
	go func() {
		defer log.HandlePanic()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownGraceInterval)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return serrors.Wrap(what, err)
	}
	return nil
}

// LogAppStarted should be called by applications as soon as logging is
// initialized.
func LogAppStarted(svcType, elemID string) error {
	inDocker, err := RunsInDocker()
	if err != nil {
		return serrors.Wrap("Unable to determine if running in docker", err)
	}
	info := fmt.Sprintf("=====================> Service started %s %s\n%s  %s\n",
		svcType, elemID, VersionInfo(), fmt.Sprintf("In docker:     %v", inDocker))
	log.Info(info)
	return nil
}

// LogAppStopped should be called by applications right before they exit.
func LogAppStopped(svcType, elemID string) {
	log.Info(fmt.Sprintf("=====================> Service stopped %s %s", svcType, elemID))
}

// RunsInDocker returns whether the current binary is run in a docker container.
func RunsInDocker() (bool, error) {
	_, err := os.Stat("/.dockerenv")
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
