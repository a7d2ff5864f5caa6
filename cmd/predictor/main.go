// Copyright 2025 James Ross
//
// predictor runs the per-hospital demand forecaster and anomaly detector,
// following the teacher's cmd/job-queue-system/main.go role-based
// entrypoint shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gemelo-digital/urgencias-twin/internal/bus"
	"github.com/gemelo-digital/urgencias-twin/internal/config"
	"github.com/gemelo-digital/urgencias-twin/internal/domain"
	"github.com/gemelo-digital/urgencias-twin/internal/obs"
	"github.com/gemelo-digital/urgencias-twin/internal/predictor"
	"github.com/gemelo-digital/urgencias-twin/internal/redisclient"
)

var version = "dev"

func main() {
	var configPath string
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		logger.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = obs.TracerShutdown(context.Background(), tp) }()
	}

	rdb := redisclient.New(cfg)
	defer rdb.Close()

	registry := bus.NewSchemaRegistry()
	busClient := bus.New(rdb, registry, logger)

	readyCheck := func(c context.Context) error {
		return rdb.Ping(c).Err()
	}
	httpSrv := obs.StartHTTPServer(cfg, readyCheck)
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()

	p := predictor.New(cfg.Predictor, hospitalConfigsFromConfig(cfg), logger)
	if err := p.TrainAll(); err != nil {
		logger.Fatal("initial training failed", obs.Err(err))
	}

	scheduler, err := predictor.NewScheduler(p, cfg.Predictor.RetrainCron, logger)
	if err != nil {
		logger.Fatal("failed to build retrain scheduler", obs.Err(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	consumer := predictor.NewConsumer(p, busClient, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	logger.Info("predictor starting", obs.String("retrainCron", cfg.Predictor.RetrainCron))
	if err := consumer.Start(ctx); err != nil {
		logger.Fatal("predictor consumer error", obs.Err(err))
	}
}

func hospitalConfigsFromConfig(cfg *config.Config) map[domain.HospitalId]domain.HospitalConfig {
	defaults := domain.DefaultHospitalConfigs()
	out := make(map[domain.HospitalId]domain.HospitalConfig, len(cfg.Hospitals))
	for _, h := range cfg.Hospitals {
		id := domain.HospitalId(h.ID)
		base, ok := defaults[id]
		if !ok {
			base = domain.HospitalConfig{ID: id, Name: h.ID}
		}
		base.Desks = h.Desks
		base.TriageBoxes = h.TriageBoxes
		base.ConsultRooms = h.ConsultRooms
		base.ObservationBeds = h.ObservationBeds
		base.OnCallDoctors = h.OnCallDoctors
		base.BaseArrivalPerHr = h.BaseArrivalPerHr
		out[id] = base
	}
	return out
}
