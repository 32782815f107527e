package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/driftwatch/internal/formatter"
	"github.com/boshu2/driftwatch/internal/governance"
)

var investigateDryRun bool

var investigateCmd = &cobra.Command{
	Use:   "investigate <topic...>",
	Short: "Request an autonomous investigation slot",
	Long: `Ask the investigation budget whether a topic may be investigated now.

A request is declined during quiet hours, when the hourly or daily limit is
spent, or when a similar topic was investigated recently. Allowed requests
count against the budget.

Examples:
  driftwatch investigate "why the cache test flakes"
  driftwatch investigate --dry-run "flaky cache test" -o json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInvestigate,
}

func init() {
	investigateCmd.Flags().BoolVar(&investigateDryRun, "dry-run", false, "Report the decision without spending budget")
	rootCmd.AddCommand(investigateCmd)
}

func runInvestigate(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	svc, err := openGovernance()
	if err != nil {
		return err
	}
	if err := svc.Start(cmd.Context()); err != nil {
		return err
	}
	defer svc.Stop()

	topic := strings.Join(args, " ")
	var d governance.Decision
	if investigateDryRun {
		d = svc.Check(topic)
	} else {
		d, err = svc.Request(cmd.Context(), topic)
		if err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	if format == formatter.FormatJSON {
		return formatter.JSON(w, d)
	}
	verdict := "declined"
	if d.Allowed {
		verdict = "allowed"
	}
	return formatter.KeyValues(w, [][2]string{
		{"Topic", topic},
		{"Decision", verdict},
		{"Reason", d.Reason},
		{"Duplicate of", orDash(d.DuplicateOf)},
		{"Remaining", fmt.Sprintf("%d this hour, %d today", d.HourlyRemaining, d.DailyRemaining)},
	})
}
