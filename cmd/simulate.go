package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"dag-ledger/logger"
	"dag-ledger/sim"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run several participants over an in-process network and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		simCfg := sim.Config{
			Participants:     cfg.Simulation.Participants,
			Slots:            cfg.Simulation.Slots,
			SkipRate:         cfg.Simulation.SkipRate,
			EquivocationRate: cfg.Simulation.EquivocationRate,
			DelayRate:        cfg.Simulation.DelayRate,
			Seed:             cfg.Simulation.Seed,
			Params:           cfg.Finality,
		}
		network, err := sim.NewNetwork(simCfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		report, err := network.Run(ctx)
		if err != nil {
			logger.Logger.Error("Simulation failed", zap.Error(err))
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	simulateCmd.Flags().Int("participants", 4, "Number of participants")
	simulateCmd.Flags().Int("slots", 40, "Number of timeslots to play")
	simulateCmd.Flags().Int64("seed", 1, "Random seed")
	_ = viper.BindPFlag("simulation.participants", simulateCmd.Flags().Lookup("participants"))
	_ = viper.BindPFlag("simulation.slots", simulateCmd.Flags().Lookup("slots"))
	_ = viper.BindPFlag("simulation.seed", simulateCmd.Flags().Lookup("seed"))
}
