package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d\n", len(cfg.Providers), len(cfg.Models))
			fmt.Fprintf(out, "Orchestrator model: %s, execution model: %s, max turns: %d\n",
				cfg.Workflow.OrchestratorModel, cfg.Workflow.ExecutionModel, cfg.Workflow.MaxTurns)
			fmt.Fprintf(out, "Verifiers: %d, evaluators: %d, persistence: %v, metrics: %v\n",
				len(cfg.Pipelines.VerifierModels), len(cfg.Pipelines.EvaluatorModels), cfg.Database.Enabled, cfg.Server.MetricsEnabled)
			return nil
		},
	}
}
