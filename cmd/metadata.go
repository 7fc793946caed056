package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lunamage/featurehub/pkg/engine"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var metadataCfgFile string

//nolint:gochecknoglobals // Cobra commands are typically global
var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Start the FeatureHub metadata service",
	Long:  `The metadata service is the system of record for per-key placement and statistics.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runEngine(cmd, metadataCfgFile, engine.Options{Metadata: true})
	},
}

func init() {
	rootCmd.AddCommand(metadataCmd)
	metadataCmd.Flags().StringVar(&metadataCfgFile, "config", "featurehub.yaml", "config file (default is featurehub.yaml)")
}
