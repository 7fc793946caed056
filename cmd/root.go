// Package cmd contains the CLI commands for FeatureHub
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Global vars needed for cobra CLI
var (
	logger *logrus.Logger
)

// rootCmd represents the base command
//
//nolint:gochecknoglobals // Cobra commands are typically global
var rootCmd = &cobra.Command{
	Use:   "featurehub",
	Short: "FeatureHub - Tiered key-value storage fronting service for ML feature data",
	Long: `FeatureHub fronts two physical stores behind one query API: a low-latency
in-memory store (HOT) and a disk-backed Redis-protocol store (COLD). A
relational store records per-key placement; background workers migrate keys
between tiers from observed access patterns and reclaim expired and orphaned
data.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error, fatal, panic)")

	// Initialize logger
	logger = logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}
