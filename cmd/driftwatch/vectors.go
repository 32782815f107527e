package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/driftwatch/internal/formatter"
	"github.com/boshu2/driftwatch/internal/types"
	"github.com/boshu2/driftwatch/internal/vectors"
)

var (
	rankEntropy  float64
	rankTriggers []string
	rankLimit    int

	addType        string
	addSource      string
	addHypothesis  string
	addWeight      float64
	addDescription string
)

var vectorsCmd = &cobra.Command{
	Use:   "vectors",
	Short: "Inspect and curate growth vectors",
	Long: `Growth vectors are agent-curated lessons kept in growth-vectors.json in the
agent's data directory. Auto-detected vectors wait in a separate candidate
pool until they recur often enough or are validated by hand.

Examples:
  driftwatch vectors list
  driftwatch vectors rank "why does the cache test keep failing" --entropy 0.9
  driftwatch vectors add --type lesson --description "re-run tests after edits"
  driftwatch vectors validate gv-1234
  driftwatch vectors lifecycle`,
}

var vectorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vectors and candidates",
	Args:  cobra.NoArgs,
	RunE:  runVectorsList,
}

var vectorsRankCmd = &cobra.Command{
	Use:   "rank <message>",
	Short: "Rank injectable vectors against a message",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runVectorsRank,
}

var vectorsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a candidate vector to the pool",
	Args:  cobra.NoArgs,
	RunE:  runVectorsAdd,
}

var vectorsValidateCmd = &cobra.Command{
	Use:   "validate <id>",
	Short: "Promote a candidate or validate a collection vector",
	Args:  cobra.ExactArgs(1),
	RunE:  runVectorsValidate,
}

var vectorsLifecycleCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Expire old candidates and cap validated vectors",
	Args:  cobra.NoArgs,
	RunE:  runVectorsLifecycle,
}

var vectorsChainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Show the candidate pool audit trail",
	Args:  cobra.NoArgs,
	RunE:  runVectorsChain,
}

func init() {
	vectorsRankCmd.Flags().Float64Var(&rankEntropy, "entropy", 0, "Current entropy score")
	vectorsRankCmd.Flags().StringSliceVar(&rankTriggers, "trigger", nil, "Scorer triggers of the latest turn")
	vectorsRankCmd.Flags().IntVar(&rankLimit, "limit", 0, "Maximum vectors (default: vectors.max_injected)")

	vectorsAddCmd.Flags().StringVar(&addType, "type", "lesson", "Vector type")
	vectorsAddCmd.Flags().StringVar(&addDescription, "description", "", "Lesson text (required)")
	vectorsAddCmd.Flags().StringVar(&addHypothesis, "hypothesis", "", "Integration hypothesis")
	vectorsAddCmd.Flags().StringVar(&addSource, "source", "", "Entropy source (scorer trigger)")
	vectorsAddCmd.Flags().Float64Var(&addWeight, "weight", 0.5, "Confidence weight in [0,1]")

	vectorsCmd.AddCommand(vectorsListCmd, vectorsRankCmd, vectorsAddCmd, vectorsValidateCmd, vectorsLifecycleCmd, vectorsChainCmd)
	rootCmd.AddCommand(vectorsCmd)
}

func runVectorsList(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	d, err := openDeps()
	if err != nil {
		return err
	}
	defer d.Close()
	agent, err := d.agent(resolveAgentID(""))
	if err != nil {
		return err
	}

	c, err := agent.Loader().Load(cmd.Context())
	if err != nil {
		return err
	}
	candidates := agent.Pool().Candidates()

	w := cmd.OutOrStdout()
	if format == formatter.FormatJSON {
		return formatter.JSON(w, struct {
			Vectors    []types.GrowthVector  `json:"vectors"`
			Queue      vectors.PriorityQueue `json:"priority_queue"`
			Candidates []types.GrowthVector  `json:"candidates"`
		}{c.Vectors, c.PriorityQueue, candidates})
	}

	all := append(append([]types.GrowthVector(nil), c.Vectors...), candidates...)
	if len(all) == 0 {
		fmt.Fprintln(w, "No growth vectors.")
		return nil
	}
	tbl := formatter.NewTable(w, "ID", "TYPE", "STATUS", "WEIGHT", "RECUR", "DETECTED", "DESCRIPTION").
		SetMaxWidth(0, 14).SetMaxWidth(6, 60)
	for _, v := range all {
		tbl.AddRow(v.ID, v.Type, string(v.ValidationStatus), fmt.Sprintf("%.2f", v.Weight),
			fmt.Sprintf("%d", v.Recurrence), v.Detected.Local().Format(time.DateOnly), v.Description)
	}
	return tbl.Render()
}

func runVectorsRank(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	d, err := openDeps()
	if err != nil {
		return err
	}
	defer d.Close()
	agent, err := d.agent(resolveAgentID(""))
	if err != nil {
		return err
	}

	var message string
	if len(args) == 1 {
		message = args[0]
	}
	ranked := agent.Ranker().Relevant(cmd.Context(), message, rankEntropy, vectors.Options{
		Triggers:    rankTriggers,
		MaxInjected: rankLimit,
	})

	w := cmd.OutOrStdout()
	if format == formatter.FormatJSON {
		return formatter.JSON(w, ranked)
	}
	if len(ranked) == 0 {
		fmt.Fprintln(w, "No vectors above the relevance threshold.")
		return nil
	}
	tbl := formatter.NewTable(w, "ID", "SCORE", "LEXICAL", "ALIGN", "RECENCY", "FEEDBACK", "DESCRIPTION").SetMaxWidth(6, 50)
	for _, r := range ranked {
		score := fmt.Sprintf("%.3f", r.Score)
		if r.Fallback {
			score = "queue"
		}
		tbl.AddRow(r.Vector.ID, score, fmt.Sprintf("%.3f", r.Lexical), fmt.Sprintf("%.2f", r.Alignment),
			fmt.Sprintf("%.3f", r.Recency), fmt.Sprintf("%+.3f", r.Feedback), r.Vector.Description)
	}
	return tbl.Render()
}

func runVectorsAdd(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	d, err := openDeps()
	if err != nil {
		return err
	}
	defer d.Close()
	agent, err := d.agent(resolveAgentID(""))
	if err != nil {
		return err
	}

	res, err := agent.Pool().AddCandidate(cmd.Context(), types.GrowthVector{
		Type:                  addType,
		Description:           strings.TrimSpace(addDescription),
		IntegrationHypothesis: addHypothesis,
		EntropySource:         addSource,
		Weight:                addWeight,
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if format == formatter.FormatJSON {
		return formatter.JSON(w, res)
	}
	fmt.Fprintf(w, "%s %s (recurrence %d)\n", res.Operation, res.ID, res.Recurrence)
	return nil
}

func runVectorsValidate(cmd *cobra.Command, args []string) error {
	d, err := openDeps()
	if err != nil {
		return err
	}
	defer d.Close()
	agent, err := d.agent(resolveAgentID(""))
	if err != nil {
		return err
	}
	if err := agent.Pool().Validate(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "validated %s\n", args[0])
	return nil
}

func runVectorsLifecycle(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	d, err := openDeps()
	if err != nil {
		return err
	}
	defer d.Close()
	agent, err := d.agent(resolveAgentID(""))
	if err != nil {
		return err
	}

	report, err := agent.Pool().RunLifecycle(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if format == formatter.FormatJSON {
		return formatter.JSON(w, report)
	}
	return formatter.KeyValues(w, [][2]string{
		{"Expired candidates", orDash(strings.Join(report.Expired, ", "))},
		{"Evicted vectors", orDash(strings.Join(report.Evicted, ", "))},
	})
}

func runVectorsChain(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	d, err := openDeps()
	if err != nil {
		return err
	}
	defer d.Close()
	agent, err := d.agent(resolveAgentID(""))
	if err != nil {
		return err
	}

	events, err := agent.Pool().Chain()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if format == formatter.FormatJSON {
		return formatter.JSON(w, events)
	}
	tbl := formatter.NewTable(w, "TIME", "OP", "VECTOR", "FROM", "TO", "REASON").SetMaxWidth(5, 50)
	for _, e := range events {
		tbl.AddRow(e.Timestamp.Local().Format(time.DateTime), e.Operation, e.VectorID,
			string(e.FromStatus), string(e.ToStatus), e.Reason)
	}
	return tbl.Render()
}
