package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lunamage/featurehub/pkg/engine"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var allCfgFile string

//nolint:gochecknoglobals // Cobra commands are typically global
var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Start every FeatureHub component in one process",
	Long:  `Runs the router, metadata service, migration engine, and cleaner as one binary.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runEngine(cmd, allCfgFile, engine.All())
	},
}

func init() {
	rootCmd.AddCommand(allCmd)
	allCmd.Flags().StringVar(&allCfgFile, "config", "featurehub.yaml", "config file (default is featurehub.yaml)")
}
