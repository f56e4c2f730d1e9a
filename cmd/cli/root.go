package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/logging"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

var (
	// Global flags
	templatesFile string
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "governance",
	Short: "Adaptive governance orchestration engine",
	Long: `governance scores requests for complexity, picks a workflow of
decision-making capabilities, runs them under circuit breakers, retries and
rate limits, and synthesizes a single governance decision.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		logger, err := logging.NewLogger(&logging.Config{
			Level:       level,
			Format:      "text",
			Output:      "stderr",
			ServiceName: "governance-cli",
			Version:     Version,
		})
		if err != nil {
			return err
		}
		logging.SetGlobalLogger(logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&templatesFile, "templates", "t", "", "workflow template override file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// requestFlags are shared by the commands that take a request
type requestFlags struct {
	tenant      string
	tool        string
	industry    string
	clients     []string
	sensitivity []string
	deadline    string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tenant, "tenant", "", "tenant the request belongs to")
	cmd.Flags().StringVar(&f.tool, "tool", "", "tool the content was produced with")
	cmd.Flags().StringVar(&f.industry, "industry", "", "industry of the client")
	cmd.Flags().StringSliceVar(&f.clients, "clients", nil, "clients named by the request")
	cmd.Flags().StringSliceVar(&f.sensitivity, "sensitivity", nil, "data sensitivity tags")
	cmd.Flags().StringVar(&f.deadline, "deadline", "", "deadline as RFC3339 or a duration from now (e.g. 6h)")
}

func (f *requestFlags) request(args []string, now time.Time) (*types.Request, error) {
	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" {
		return nil, fmt.Errorf("a request message is required")
	}

	req := &types.Request{
		Message: message,
		Context: types.RequestContext{
			TenantID:        f.tenant,
			Tool:            f.tool,
			Industry:        f.industry,
			Clients:         f.clients,
			DataSensitivity: f.sensitivity,
		},
	}

	if f.deadline != "" {
		deadline, err := parseDeadline(f.deadline, now)
		if err != nil {
			return nil, err
		}
		req.Context.Deadline = &deadline
	}
	return req, nil
}

func parseDeadline(value string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(value); err == nil {
		return now.Add(d), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deadline %q: use RFC3339 or a duration", value)
	}
	return t, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
