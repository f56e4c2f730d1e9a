package main

import (
	"github.com/spf13/cobra"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Show the workflow template for each complexity level",
	Long: `Print the level to capability plan table, including any overrides from
the file given with --templates.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		selector, err := loadSelector()
		if err != nil {
			return err
		}

		table := selector.Templates()
		ordered := make([]types.WorkflowTemplate, 0, len(types.Levels))
		for _, level := range types.Levels {
			ordered = append(ordered, table[level])
		}
		return printJSON(cmd.OutOrStdout(), ordered)
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd)
}
