package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lunamage/featurehub/pkg/engine"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var cleanerCfgFile string

//nolint:gochecknoglobals // Cobra commands are typically global
var cleanerCmd = &cobra.Command{
	Use:   "cleaner",
	Short: "Start the FeatureHub data cleaner",
	Long:  `The cleaner reconciles the storage surfaces, removing expired and orphaned data.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runEngine(cmd, cleanerCfgFile, engine.Options{Cleaner: true})
	},
}

func init() {
	rootCmd.AddCommand(cleanerCmd)
	cleanerCmd.Flags().StringVar(&cleanerCfgFile, "config", "featurehub.yaml", "config file (default is featurehub.yaml)")
}
