package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/NikhilSetiya/governance-orchestrator/internal/complexity"
	"github.com/NikhilSetiya/governance-orchestrator/internal/workflow"
)

var analyzeFlags requestFlags

var analyzeCmd = &cobra.Command{
	Use:   "analyze <message>",
	Short: "Score a request and show the workflow it would run",
	Example: `  governance analyze "Urgent campaign for Pfizer and Novartis" --tool midjourney --deadline 6h`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeFlags.register(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	req, err := analyzeFlags.request(args, time.Now())
	if err != nil {
		return err
	}

	selector, err := loadSelector()
	if err != nil {
		return err
	}

	score := complexity.NewKeywordAnalyzer(complexity.DefaultConfig()).Analyze(req)
	template := selector.Select(score)

	return printJSON(cmd.OutOrStdout(), map[string]interface{}{
		"complexity":                   score,
		"capabilities":                 template.Names(),
		"estimated_processing_time_ms": complexity.EstimatedProcessingTime(score.Score).Milliseconds(),
	})
}

func loadSelector() (*workflow.Selector, error) {
	selector, err := workflow.NewSelector(nil)
	if err != nil {
		return nil, err
	}
	if templatesFile != "" {
		if err := selector.Reload(templatesFile); err != nil {
			return nil, err
		}
	}
	return selector, nil
}
