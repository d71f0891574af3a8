package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/ra56/loadgen/internal/config"
	"github.com/ra56/loadgen/internal/history"
)

func newHistoryCommand(stdout io.Writer) *cobra.Command {
	var (
		limit    int
		path     string
		jsonMode bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				path = config.Defaults().History.Path
			}
			if path == "" {
				return fmt.Errorf("no history path: pass --history-path")
			}
			records, err := history.NewStore(path).List(limit)
			if err != nil {
				return err
			}
			if jsonMode {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				if records == nil {
					records = []history.Record{}
				}
				return enc.Encode(records)
			}
			printHistory(stdout, records)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 shows all)")
	cmd.Flags().StringVar(&path, "history-path", "", "Run history file (default ~/.loadgen/history.jsonl)")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "Print records as JSON")
	return cmd
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func printHistory(w io.Writer, records []history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "STARTED", "TARGET", "RPS", "ACHIEVED", "TOTAL", "ERRORS", "P99 MS", "VERDICT").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, rec := range records {
		t.Row(
			rec.ID,
			rec.StartedAt.Local().Format(time.DateTime),
			rec.Method+" "+rec.Target,
			strconv.Itoa(rec.TargetRPS),
			fmt.Sprintf("%.2f", rec.AchievedRPS),
			strconv.FormatInt(rec.Total, 10),
			strconv.FormatInt(rec.Failed, 10),
			fmt.Sprintf("%.1f", rec.P99LatencyMs),
			rec.Verdict,
		)
	}
	fmt.Fprintln(w, t.Render())
}
