package main

import (
	"github.com/spf13/cobra"

	"github.com/gemelo-digital/urgencias-twin/internal/domain"
)

var speedValue float64

var speedCmd = &cobra.Command{
	Use:   "speed",
	Short: "Change every hospital's simulated-minutes-per-wall-second speed",
	Run: func(cmd *cobra.Command, args []string) {
		if speedValue < 0.1 {
			fatalf("twinctl: --speed must be >= 0.1")
		}
		v := speedValue
		publishControl(domain.SimulationControlCommand{Command: "set_speed", Speed: &v})
	},
}

func init() {
	speedCmd.Flags().Float64Var(&speedValue, "speed", 1.0, "New simulation speed multiplier")
}
