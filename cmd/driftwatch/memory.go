package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/driftwatch/internal/formatter"
	"github.com/boshu2/driftwatch/internal/memory"
)

var (
	memoryType      string
	memoryLimit     int
	memoryRecent    bool
	memoryAllAgents bool
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Query the memory store",
	Long: `Tensions, heartbeat decisions and pre-compaction summaries are written to
the configured memory store (memory.backend). These commands read them back.

Examples:
  driftwatch memory search "cache invalidation"
  driftwatch memory search --type heartbeat_decision --recent
  driftwatch memory search deploy --all-agents -o json`,
}

var memorySearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search stored records",
	Long: `Rank records by the number of query words they contain. Without a query
the most recent records are listed. Results are limited to the selected
agent unless --all-agents is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMemorySearch,
}

func init() {
	memorySearchCmd.Flags().StringVar(&memoryType, "type", "", "Record type (tension, heartbeat_decision, compaction_summary)")
	memorySearchCmd.Flags().IntVar(&memoryLimit, "limit", 10, "Maximum records")
	memorySearchCmd.Flags().BoolVar(&memoryRecent, "recent", false, "Order by recency instead of relevance")
	memorySearchCmd.Flags().BoolVar(&memoryAllAgents, "all-agents", false, "Include records of every agent")
	memoryCmd.AddCommand(memorySearchCmd)
	rootCmd.AddCommand(memoryCmd)
}

func runMemorySearch(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	d, err := openDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	var query string
	if len(args) == 1 {
		query = args[0]
	}
	opts := memory.SearchOptions{Limit: memoryLimit, Type: memoryType}
	if memoryRecent {
		opts.Sort = memory.SortRecent
	}
	if !memoryAllAgents {
		opts.Agent = resolveAgentID("")
	}
	records, err := d.memory.Search(cmd.Context(), query, opts)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if format == formatter.FormatJSON {
		return formatter.JSON(w, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No matching records.")
		return nil
	}
	return writeMemoryTable(w, records)
}

func writeMemoryTable(w io.Writer, records []memory.Record) error {
	tbl := formatter.NewTable(w, "TIME", "TYPE", "AGENT", "CONTENT").SetMaxWidth(3, 70)
	for _, r := range records {
		tbl.AddRow(r.CreatedAt.Local().Format(time.DateTime), orDash(r.Metadata[memory.MetaType]),
			orDash(r.Metadata[memory.MetaAgent]), strings.Join(strings.Fields(r.Content), " "))
	}
	return tbl.Render()
}
