package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/bench"
)

// NewPerturbCmd requests one perturbation from the daemon's generator pipeline.
func NewPerturbCmd(opts *Options) *cobra.Command {
	var contextText string
	var answers []string
	var class string
	var intensity string

	cmd := &cobra.Command{
		Use:   "perturb \"<question>\"",
		Short: "Generate a perturbed instance via the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			reqBody := bench.GenerateRequest{
				Question:          args[0],
				Context:           contextText,
				Answers:           answers,
				PerturbationClass: class,
				Intensity:         intensity,
			}
			data, err := json.Marshal(reqBody)
			if err != nil {
				return err
			}

			resp, err := http.Post(daemonURL(cfg.Server.Addr)+"/perturb", "application/json", bytes.NewReader(data))
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 300 {
				return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}

			var p bench.Perturbation
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			pretty, err := json.MarshalIndent(p, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
			return nil
		},
	}

	cmd.Flags().StringVar(&contextText, "context", "", "Original context passage")
	cmd.Flags().StringSliceVar(&answers, "answer", nil, "Known correct answer (repeatable)")
	cmd.Flags().StringVar(&class, "class", bench.ClassMissingInformation, "Perturbation class")
	cmd.Flags().StringVar(&intensity, "intensity", bench.IntensityMedium, "Perturbation intensity")
	return cmd
}
