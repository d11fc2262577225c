package main

import (
	"github.com/spf13/cobra"

	"github.com/1ureka/beam/internal/config"
	"github.com/1ureka/beam/internal/room"
	"github.com/1ureka/beam/internal/signaling"
	"github.com/1ureka/beam/internal/util"
)

func relayCmd() *cobra.Command {
	cfg := config.DefaultRelay()

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the rendezvous relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.RelayFromEnv(config.DefaultRelay())
			if err != nil {
				return err
			}
			// Flags win over the environment.
			flags := cmd.Flags()
			if !flags.Changed("listen") {
				cfg.Listen = env.Listen
			}
			if !flags.Changed("ttl") {
				cfg.RoomTTL = env.RoomTTL
			}
			if !flags.Changed("sweep") {
				cfg.SweepInterval = env.SweepInterval
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runRelay(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.Listen, "listen", cfg.Listen, "address to listen on")
	cmd.Flags().DurationVar(&cfg.RoomTTL, "ttl", cfg.RoomTTL, "room lifetime, measured from creation")
	cmd.Flags().DurationVar(&cfg.SweepInterval, "sweep", cfg.SweepInterval, "how often expired rooms are removed")
	return cmd
}

func runRelay(cmd *cobra.Command, cfg config.Relay) error {
	ctx := cmd.Context()

	relay := signaling.NewRelay(room.NewRegistry(cfg.RoomTTL))
	server := signaling.NewServer(relay)

	addr, err := server.Start(cfg.Listen)
	if err != nil {
		return err
	}
	defer server.Close()

	go relay.Run(ctx, cfg.SweepInterval)
	util.StartStatsReporter(ctx)

	util.LogSuccess("relay listening on ws://%s/ws (rooms expire after %s)", addr, cfg.RoomTTL)
	<-ctx.Done()

	util.LogInfo("shutting down relay")
	return nil
}
