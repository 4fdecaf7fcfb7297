package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hashdrive/hashdrive/internal/gateway"
	"github.com/hashdrive/hashdrive/internal/kv"
)

// openOptimizer wires an optimizer over the local state store without
// touching the registry; gateway commands never need an owner.
func openOptimizer() (*gateway.Optimizer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	setupLogging(cfg.LogLevel)

	state, err := kv.NewFile(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return gateway.New(gateway.Options{
		Persist: state,
		Logger:  log.Logger,
	}), nil
}

func newGatewaysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateways",
		Short: "Manage and inspect retrieval gateways",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show gateways in ranked order with their health stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := openOptimizer()
			if err != nil {
				return err
			}
			fmt.Printf("%-40s %9s %9s %8s\n", "GATEWAY", "SUCCESS", "EMA(ms)", "CHECKED")
			for _, s := range o.Rank() {
				checked := "never"
				if !s.LastCheckedAt.IsZero() {
					checked = s.LastCheckedAt.Format("15:04:05")
				}
				fmt.Printf("%-40s %8.1f%% %9.0f %8s\n", s.URL, s.SuccessRate*100, s.EMAResponseTime, checked)
			}
			return nil
		},
	}
	cmd.AddCommand(listCmd)

	var displayName string
	addCmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Add a custom gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := openOptimizer()
			if err != nil {
				return err
			}
			url := o.AddCustomGateway(args[0], displayName)
			fmt.Printf("Added %s\n", url)
			return nil
		},
	}
	addCmd.Flags().StringVar(&displayName, "name", "", "display name for the gateway")
	cmd.AddCommand(addCmd)

	removeCmd := &cobra.Command{
		Use:   "remove <url>",
		Short: "Remove a custom gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := openOptimizer()
			if err != nil {
				return err
			}
			o.RemoveCustomGateway(args[0])
			fmt.Println("Removed")
			return nil
		},
	}
	cmd.AddCommand(removeCmd)

	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "Run one health check cycle against all gateways now",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := openOptimizer()
			if err != nil {
				return err
			}
			start := time.Now()
			o.RunHealthCheckCycle(cmd.Context())
			fmt.Printf("Probed %d gateways in %s\n", len(o.Rank()), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.AddCommand(probeCmd)

	return cmd
}
