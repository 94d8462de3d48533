package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/hausnet/heartbeat-agent/internal/service_registry"
	"github.com/hausnet/heartbeat-agent/internal/services"
	"github.com/hausnet/heartbeat-agent/internal/utils"
	"github.com/hausnet/heartbeat-agent/pkg/file"
	"github.com/hausnet/heartbeat-agent/pkg/mqtt"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent",
	Long: `Start every enabled service and run until interrupted (Ctrl+C) or SIGTERM.

Example:
  heartbeat-agent run -c configs/config.yaml`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", "configs/config.yaml", "path to config file")
}

// newLogger builds the process logger from the log section.
func newLogger(config *utils.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(config.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if config.Log.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("device_id", config.Identity.DeviceID).Logger()
}

func runAgent(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(configFile, fileClient)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := newLogger(config)

	// Initialize the shared MQTT connection when a broker is configured
	var mqttClient mqtt.MQTTClient
	if config.MQTT.Broker != "" {
		// Generate a unique MQTT Client ID by appending a UUID
		clientID := config.MQTT.ClientID + "-" + uuid.New().String()
		log.Info().Msgf("Using MQTT Client ID: %s", clientID)

		mqttService := mqtt.NewMqttService(fileClient)
		err = mqttService.Initialize(mqtt.Options{
			Broker:             config.MQTT.Broker,
			ClientID:           clientID,
			Username:           config.MQTT.Username,
			Password:           config.MQTT.Password,
			CACertificate:      config.MQTT.CACertificate,
			InsecureSkipVerify: config.MQTT.InsecureSkipVerify,
			AvailabilityTopic:  config.MQTT.AvailabilityTopic,
			ConnectTimeout:     config.MQTT.ConnectTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT connection: %w", err)
		}
		defer mqttService.Disconnect(250)
		mqttClient = mqttService
	}

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, services.NewTelemetry(), log)

	// Register all services based on the configuration
	if err := serviceRegistry.RegisterServices(config); err != nil {
		return fmt.Errorf("failed to register services: %w", err)
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		return err
	}
	log.Info().Strs("services", serviceRegistry.Names()).Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down gracefully...")
	return serviceRegistry.StopServices()
}
