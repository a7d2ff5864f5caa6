package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gemelo-digital/urgencias-twin/internal/bus"
	"github.com/gemelo-digital/urgencias-twin/internal/domain"
	"github.com/gemelo-digital/urgencias-twin/internal/obs"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Publish a start command (the simulator ignores it; a stopped run is not resumed)",
	Run: func(cmd *cobra.Command, args []string) {
		publishControl(domain.SimulationControlCommand{Command: "start"})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Halt every hospital's simulation and the running processes",
	Run: func(cmd *cobra.Command, args []string) {
		publishControl(domain.SimulationControlCommand{Command: "stop"})
	},
}

func publishControl(cmd domain.SimulationControlCommand) {
	_, client, logger, cleanup, err := newBusClient()
	if err != nil {
		fatalf("twinctl: %v", err)
	}
	defer cleanup()

	if err := client.Produce(context.Background(), domain.TopicSimulationControl, cmd, bus.ProduceOptions{Validate: true}); err != nil {
		logger.Error("publish simulation-control failed", obs.Err(err))
		fatalf("twinctl: publish failed: %v", err)
	}
}
