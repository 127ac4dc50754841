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

package main

import (
	"context"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pktpipe/pktpipe/pipeline"
	"github.com/pktpipe/pktpipe/pipeline/config"
	api "github.com/pktpipe/pktpipe/pipeline/mgmtapi"
	"github.com/pktpipe/pktpipe/pkg/log"
	"github.com/pktpipe/pktpipe/pkg/private/processmetrics"
	"github.com/pktpipe/pktpipe/pkg/private/serrors"
	"github.com/pktpipe/pktpipe/private/app/command"
	"github.com/pktpipe/pktpipe/private/app/launcher"
	"github.com/pktpipe/pktpipe/private/periodic"
)

var globalCfg config.Config

var application launcher.Application

func main() {
	application = launcher.Application{
		TOMLConfig: &globalCfg,
		ShortName:  "pktpipe",
		Main:       realMain,
		Commands: []func(command.Pather) *cobra.Command{
			newOffsets,
			newClasses,
		},
	}
	application.Run()
}

func realMain(ctx context.Context) error {
	p, err := build()
	if err != nil {
		return err
	}
	defer p.Close()

	if err := processmetrics.Init(nil); err != nil {
		log.Info("Process metrics unavailable", "err", err)
	}
	reporter := periodic.Start(&pipeline.TableReporter{
		Pipeline: p,
		Metrics:  pipeline.NewTableMetrics(),
	}, globalCfg.Pipeline.StatsInterval.Duration, globalCfg.Pipeline.StatsInterval.Duration)
	defer reporter.Kill()

	g, errCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer log.HandlePanic()
		return globalCfg.Metrics.ServePrometheus(errCtx)
	})
	g.Go(func() error {
		defer log.HandlePanic()
		r := chi.NewRouter()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
		}))
		server := &api.Server{Pipeline: p, Logger: log.New("component", "mgmtapi")}
		return globalCfg.API.Serve(errCtx, api.Handler(server, r))
	})
	g.Go(func() error {
		defer log.HandlePanic()
		if err := p.Run(errCtx); err != nil {
			return serrors.Wrap("running pipeline", err)
		}
		log.Info("All sources exhausted")
		return nil
	})
	return g.Wait()
}

// build creates the pipeline from the global configuration. Relative paths
// are resolved against the directory of the configuration file unless
// general.config_dir is set.
func build() (*pipeline.Pipeline, error) {
	if globalCfg.General.ConfigDir == "" {
		globalCfg.General.ConfigDir = filepath.Dir(application.ConfigFile())
	}
	p, plan, err := globalCfg.Build(log.New("component", "pipeline"))
	if err != nil {
		return nil, serrors.Wrap("building pipeline", err)
	}
	log.Info("Metadata offsets computed",
		"components", len(plan.Components),
		"orphans", len(plan.Orphans),
		"scratch_bytes", plan.ScratchBytes,
		"total_size", plan.TotalSize)
	return p, nil
}
