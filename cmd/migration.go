package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lunamage/featurehub/pkg/engine"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var migrationCfgFile string

//nolint:gochecknoglobals // Cobra commands are typically global
var migrationCmd = &cobra.Command{
	Use:   "migration",
	Short: "Start the FeatureHub migration engine",
	Long:  `The migration engine moves keys between the HOT and COLD tiers on observed access patterns.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runEngine(cmd, migrationCfgFile, engine.Options{Migration: true})
	},
}

func init() {
	rootCmd.AddCommand(migrationCmd)
	migrationCmd.Flags().StringVar(&migrationCfgFile, "config", "featurehub.yaml", "config file (default is featurehub.yaml)")
}
