// Copyright 2025 James Ross
//
// simulator runs every hospital's discrete-event flow simulation in one
// process, following the teacher's cmd/job-queue-system/main.go role-based
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
	"github.com/gemelo-digital/urgencias-twin/internal/generator"
	"github.com/gemelo-digital/urgencias-twin/internal/idempotency"
	"github.com/gemelo-digital/urgencias-twin/internal/obs"
	"github.com/gemelo-digital/urgencias-twin/internal/orchestrator"
	"github.com/gemelo-digital/urgencias-twin/internal/redisclient"
)

var version = "dev"

func main() {
	var configPath string
	var seed int64
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.Int64Var(&seed, "seed", 1, "Base RNG seed; each hospital's generator offsets from it")
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

	hospitals := hospitalConfigsFromConfig(cfg)
	epoch := time.Now()
	orch := orchestrator.New(hospitals, generator.NeutralContextProvider{}, epoch, seed, busClient, logger)
	orch.SetDedup(idempotency.NewRedisIdempotencyManager(rdb, cfg.ExactlyOnce.Namespace, cfg.ExactlyOnce.DefaultTTL))

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

	logger.Info("simulator starting", obs.Int("hospitals", len(hospitals)))
	if err := orch.Start(ctx); err != nil {
		logger.Fatal("orchestrator error", obs.Err(err))
	}
}

// hospitalConfigsFromConfig builds the ordered hospital list the
// orchestrator runs, overriding domain.DefaultHospitalConfigs' capacity and
// arrival-rate fields from cfg.Hospitals by id; name/location stay at their
// defaults since config.Hospital doesn't carry them.
func hospitalConfigsFromConfig(cfg *config.Config) []domain.HospitalConfig {
	defaults := domain.DefaultHospitalConfigs()
	out := make([]domain.HospitalConfig, 0, len(cfg.Hospitals))
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
		out = append(out, base)
	}
	return out
}
