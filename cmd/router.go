package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lunamage/featurehub/pkg/engine"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var routerCfgFile string

//nolint:gochecknoglobals // Cobra commands are typically global
var routerCmd = &cobra.Command{
	Use:   "router",
	Short: "Start the FeatureHub query router",
	Long:  `The router serves the read/write/batch API and emits access telemetry.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runEngine(cmd, routerCfgFile, engine.Options{Router: true})
	},
}

func init() {
	rootCmd.AddCommand(routerCmd)
	routerCmd.Flags().StringVar(&routerCfgFile, "config", "featurehub.yaml", "config file (default is featurehub.yaml)")
}
