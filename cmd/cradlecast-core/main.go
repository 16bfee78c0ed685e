// Copyright 2025 Cradlecast Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the entry point for the cradlecast-core binary: the
// connectivity and reliability control plane of the device. Without real
// drivers wired in, the binary runs against simulated link, socket and audio
// implementations; platform builds inject their own.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cradlecast/cradlecast-core/pkg/audio"
	"github.com/cradlecast/cradlecast-core/pkg/config"
	"github.com/cradlecast/cradlecast-core/pkg/control"
	"github.com/cradlecast/cradlecast-core/pkg/logger"
	"github.com/cradlecast/cradlecast-core/pkg/metrics"
	"github.com/cradlecast/cradlecast-core/pkg/snapshot"
	"github.com/cradlecast/cradlecast-core/pkg/transport"
	"github.com/cradlecast/cradlecast-core/pkg/watchdog"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath  string
		metricsAddr string
	)

	rootCmd := &cobra.Command{
		Use:   "cradlecast-core",
		Short: "Connectivity and reliability control plane for the cradlecast device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, metricsAddr)
		},
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "/etc/cradlecast/config.yaml", "Path to the YAML configuration file")
	rootCmd.Flags().StringVarP(&metricsAddr, "metrics-addr", "m", "", "Metrics listen address (overrides config)")

	rootCmd.AddCommand(newStatusCmd())

	return rootCmd
}

func newStatusCmd() *cobra.Command {
	var configPath string

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the last persisted control plane snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			store := &snapshot.FileStore{Path: cfg.SnapshotPath}

			s, ok := snapshot.NewPersister(store).Restore()
			if !ok {
				return fmt.Errorf("no snapshot available at %s", cfg.SnapshotPath)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "System state:      %s (previous: %s)\n", s.SystemState, s.PreviousState)
			fmt.Fprintf(out, "Connection state:  %s (attempts: %d)\n", s.ConnectionState, s.ConnectAttempts)
			fmt.Fprintf(out, "Degradation mode:  %s\n", s.DegradationMode)
			fmt.Fprintf(out, "Health score:      %d\n", s.HealthScore)
			fmt.Fprintf(out, "Tick:              %d\n", s.Tick)
			fmt.Fprintf(out, "Captured at:       %s\n", s.Timestamp.Format(time.RFC3339))

			return nil
		},
	}

	statusCmd.Flags().StringVarP(&configPath, "config", "c", "/etc/cradlecast/config.yaml", "Path to the YAML configuration file")

	return statusCmd
}

func run(ctx context.Context, configPath, metricsAddr string) error {
	logger.Initialize()
	log := logger.For(logger.ComponentCore)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if metricsAddr != "" {
		cfg.MetricsAddress = metricsAddr
	}

	log.Infof("Starting cradlecast-core, endpoint %s:%d", cfg.Endpoint.Host, cfg.Endpoint.Port)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := snapshot.NewFileStore(cfg.SnapshotPath)
	if err != nil {
		log.Warnf("Snapshot persistence disabled: %v", err)
		store = nil
	}

	// Simulated drivers: the link is up and every connect succeeds, so a
	// bare run demonstrates the full path to streaming. Platform builds
	// replace these with real drivers.
	link := transport.NewMockLink()
	link.Up = true
	link.LinkQuality = transport.LinkQuality{Strength: 90}

	socket := transport.NewMockSocket()
	socket.ConnectResult = true

	deps := control.Deps{
		Link:   link,
		Socket: socket,
		Audio:  audio.NewMockSource(),
		Feeder: watchdog.NopFeeder{},
	}

	if store != nil {
		deps.SnapshotStore = store
	}

	loop := control.NewLoop(cfg, deps)

	metricsServer := metrics.SetupMetricsEndpoint(cfg.MetricsAddress)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loop.Execute(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutdownCancel()

		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("control plane stopped: %w", err)
	}

	log.Info("cradlecast-core stopped")

	_ = logger.Sync()

	return nil
}
