package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markusressel/heat2go/internal/api"
	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/hal"
	"github.com/markusressel/heat2go/internal/persistence"
	"github.com/markusressel/heat2go/internal/statistics"
	"github.com/markusressel/heat2go/internal/status"
	"github.com/markusressel/heat2go/internal/thermal"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/oklog/run"
)

func RunDaemon() {
	config := &configuration.CurrentConfig

	pers := persistence.NewPersistence(config.DbPath)
	if err := pers.Init(); err != nil {
		ui.Fatal("Unable to initialize persistence at %s: %v", config.DbPath, err)
	}

	reporter := status.NewReporter(status.Options{
		StatusFile:  config.StatusFile,
		Persistence: pers,
		Notify:      config.Notify,
	})
	if err := reporter.WriteInitial(); err != nil {
		ui.Warning("Unable to write status file %s: %v", config.StatusFile, err)
	}

	board, err := NewBoard(config, BoardOptions{
		Reporter:     reporter,
		Stopper:      status.CommandStopper{Exec: config.Stop.Exec, Args: config.Stop.Args},
		Store:        pers,
		IdleInterval: config.IdleInterval,
	})
	if err != nil {
		ui.Fatal("Unable to set up thermal manager: %v", err)
	}
	board.LoadConstants(pers)

	statistics.Register(statistics.FaultsTotal)
	statistics.Register(statistics.NewManagerCollector(board.Manager))
	statistics.Register(statistics.NewChannelCollector(board.Manager))
	statistics.Register(statistics.NewFanCollector(board.Manager))

	loop := thermal.NewLoop(board.Manager)

	ctx, cancel := context.WithCancel(context.Background())

	var g run.Group
	{
		// === interrupt timer
		timer := hal.TickerTimer{}
		g.Add(func() error {
			err := timer.Start(ctx, board.Frequency(), board.Tick)
			ui.Info("Interrupt timer stopped.")
			return err
		}, func(err error) {
			if err != nil {
				ui.Warning("Error stopping interrupt timer: %v", err)
			}
		})
	}
	{
		// === main loop
		g.Add(func() error {
			ui.Info("Thermal manager running with %d channels", len(board.Manager.ChannelIds()))
			err := loop.Run(ctx)
			ui.Info("Thermal manager stopped, all heaters off.")
			return err
		}, func(err error) {
			if err != nil {
				ui.Warning("Something went wrong: %v", err)
			}
		})
	}
	if config.Statistics.Enabled {
		// === Prometheus Exporter
		server := api.CreateMetricsServer()
		g.Add(func() error {
			port := config.Statistics.Port
			if port <= 0 || port >= 65535 {
				port = 9000
			}
			addr := fmt.Sprintf(":%d", port)
			if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				ui.Error("Cannot start prometheus metrics endpoint (%s)", err.Error())
				return err
			}
			return nil
		}, func(err error) {
			ui.Info("Stopping statistics server...")
			timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer timeoutCancel()
			if err := server.Shutdown(timeoutCtx); err != nil {
				ui.Warning("Error stopping statistics server: " + err.Error())
			} else {
				ui.Info("Statistics server stopped.")
			}
		})
	}
	if config.Api.Enabled {
		// === REST api
		rest := api.CreateRestService(api.Backend{Loop: loop, Persistence: pers})
		g.Add(func() error {
			addr := fmt.Sprintf("%s:%d", config.Api.Host, config.Api.Port)
			if err := rest.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				ui.Error("Cannot start REST api (%s)", err.Error())
				return err
			}
			return nil
		}, func(err error) {
			timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer timeoutCancel()
			if err := rest.Shutdown(timeoutCtx); err != nil {
				ui.Warning("Error stopping REST api: %v", err)
			}
		})
	}
	{
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

		g.Add(func() error {
			select {
			case <-sig:
				ui.Info("Received SIGTERM signal, exiting...")
			case <-ctx.Done():
			}
			return nil
		}, func(err error) {
			signal.Stop(sig)
			cancel()
		})
	}

	if err := g.Run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	} else {
		ui.Info("Done.")
		os.Exit(0)
	}
}
