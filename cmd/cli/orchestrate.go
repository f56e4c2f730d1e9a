package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/NikhilSetiya/governance-orchestrator/internal/capabilities"
	"github.com/NikhilSetiya/governance-orchestrator/internal/orchestrator"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/capability"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

var orchestrateFlags struct {
	requestFlags
	capabilitiesFile string
	timeout          time.Duration
	sequential       bool
	failOnReview     bool
}

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate <message>",
	Short: "Run a request through the engine and print the decision",
	Long: `Run a request in-process against the capabilities defined in a YAML file.
Capabilities named by the selected workflow but missing from the file are
reported as failures, which routes the decision to human review.`,
	Example: `  governance orchestrate "Review this post" --capabilities capabilities.yaml
  governance orchestrate "Casino promo" -c capabilities.yaml --fail-on-review`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOrchestrate,
}

func init() {
	rootCmd.AddCommand(orchestrateCmd)
	orchestrateFlags.register(orchestrateCmd)
	orchestrateCmd.Flags().StringVarP(&orchestrateFlags.capabilitiesFile, "capabilities", "c", "", "capability definitions file (required)")
	orchestrateCmd.Flags().DurationVar(&orchestrateFlags.timeout, "timeout", 2*time.Minute, "overall timeout")
	orchestrateCmd.Flags().BoolVar(&orchestrateFlags.sequential, "sequential", false, "never run capabilities in parallel")
	orchestrateCmd.Flags().BoolVar(&orchestrateFlags.failOnReview, "fail-on-review", false, "exit non-zero unless the request is approved")
	_ = orchestrateCmd.MarkFlagRequired("capabilities")
}

func runOrchestrate(cmd *cobra.Command, args []string) error {
	req, err := orchestrateFlags.request(args, time.Now())
	if err != nil {
		return err
	}

	registry := capability.NewRegistry()
	if _, err := capabilities.Register(registry, orchestrateFlags.capabilitiesFile, nil); err != nil {
		return err
	}

	config := orchestrator.DefaultConfig()
	config.TemplatesFile = templatesFile
	config.CacheEnabled = false
	config.Analyzer.ParallelExecution = !orchestrateFlags.sequential

	orch, err := orchestrator.New(config, orchestrator.Dependencies{Registry: registry})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), orchestrateFlags.timeout)
	defer cancel()

	decision := orch.Orchestrate(ctx, req)
	if err := printJSON(cmd.OutOrStdout(), decision); err != nil {
		return err
	}

	if orchestrateFlags.failOnReview && decision.Status != types.StatusApproved {
		return fmt.Errorf("request was not approved: %s", decision.Status)
	}
	return nil
}
