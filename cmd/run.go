package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lunamage/featurehub/pkg/engine"
)

// loadConfigFromFile reads the shared FeatureHub YAML configuration
func loadConfigFromFile(file string) (*engine.Config, error) {
	if file == "" {
		file = "featurehub.yaml"
	}

	config := &engine.Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(file) //nolint:gosec // User-provided config file path
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, err
	}

	return config, nil
}

// runEngine loads configuration, starts the selected components, and blocks
// until interrupted
func runEngine(cmd *cobra.Command, cfgFile string, opts engine.Options) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	config, err := loadConfigFromFile(cfgFile)
	if err != nil {
		return err
	}

	if f := cmd.Flag("log-level"); f != nil && f.Changed {
		config.Logging = f.Value.String()
	}

	level, err := logrus.ParseLevel(config.Logging)
	if err != nil {
		return err
	}

	logger.SetLevel(level)
	logger.Info("Configuration loaded")

	service, err := engine.NewService(logger, config, opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := service.Start(ctx); err != nil {
		return err
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	return service.Stop()
}
