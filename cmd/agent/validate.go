package main

import (
	"context"
	"fmt"

	"github.com/hausnet/heartbeat-agent/internal/utils"
	"github.com/hausnet/heartbeat-agent/pkg/file"
	"github.com/hausnet/heartbeat-agent/pkg/heartbeat"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a configuration file without starting any service.

The YAML is parsed, environment variables are expanded and every field is
validated. With --check-heartbeat the heartbeat service token and device
are also verified against the live API.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  heartbeat-agent validate -c configs/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	validateCmd.Flags().Bool("check-heartbeat", false, "verify the heartbeat service token and device")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	checkHeartbeat, _ := cmd.Flags().GetBool("check-heartbeat")

	config, err := utils.LoadConfig(configFile, file.NewFileService())
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	hb := config.Services.Heartbeat
	if checkHeartbeat && hb.Enabled {
		ctx, cancel := context.WithTimeout(cmd.Context(), hb.RequestTimeout)
		defer cancel()
		if err := heartbeat.VerifyConnection(ctx, heartbeat.NewClient(hb.URL, hb.APIKey), hb.Device); err != nil {
			return fmt.Errorf("heartbeat service check failed: %w", err)
		}
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Device ID:      %s\n", config.Identity.DeviceID)
	fmt.Printf("  MQTT broker:    %s\n", orNone(config.MQTT.Broker))
	fmt.Printf("  Pulse sources:  %s\n", enabledCount(config.Services.Pulse.Enabled, len(config.Services.Pulse.Sensors)))
	fmt.Printf("  Heartbeat:      %s\n", heartbeatSummary(config))
	fmt.Printf("  System sensors: %s\n", enabledCount(config.Services.Metrics.Enabled, len(config.Services.Metrics.Conditions)))
	if config.Services.Exporter.Enabled {
		fmt.Printf("  Exporter:       %s%s\n", config.Services.Exporter.Listen, config.Services.Exporter.Path)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func enabledCount(enabled bool, n int) string {
	if !enabled {
		return "disabled"
	}
	return fmt.Sprintf("%d", n)
}

func heartbeatSummary(config *utils.Config) string {
	hb := config.Services.Heartbeat
	if !hb.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("%s every %s", hb.Device, hb.Interval)
}
