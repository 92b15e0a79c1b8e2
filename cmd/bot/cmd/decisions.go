package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Show the most recent decisions",
	Long: `Prints the newest entries of the decision journal, one per evaluated bar.

Examples:
  bot decisions
  bot decisions -n 200 --json`,
	Args: cobra.NoArgs,
	RunE: runDecisions,
}

var (
	decisionsDBPath string
	decisionsLimit  int
	decisionsJSON   bool
	decisionsTrades bool
)

func init() {
	rootCmd.AddCommand(decisionsCmd)
	decisionsCmd.Flags().StringVarP(&decisionsDBPath, "db", "d", "", "path to SQLite store (default storage.db_path)")
	decisionsCmd.Flags().IntVarP(&decisionsLimit, "limit", "n", 50, "number of records")
	decisionsCmd.Flags().BoolVar(&decisionsJSON, "json", false, "print JSON lines")
	decisionsCmd.Flags().BoolVar(&decisionsTrades, "trades", false, "show closed trades instead of decisions")
}

func runDecisions(cmd *cobra.Command, args []string) error {
	s, err := openStore(decisionsDBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	if decisionsTrades {
		trades, err := s.ListTrades(cmd.Context(), decisionsLimit)
		if err != nil {
			return fmt.Errorf("list trades: %w", err)
		}
		if decisionsJSON {
			enc := json.NewEncoder(out)
			for _, t := range trades {
				if err := enc.Encode(t); err != nil {
					return err
				}
			}
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CLOSED\tPOSITION\tSIDE\tVOLUME\tENTRY\tEXIT\tNET")
		for _, t := range trades {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\t%.5f\t%.5f\t%.2f\n",
				t.ClosingTime.Format(time.RFC3339), t.PositionID, t.Side, t.Volume, t.EntryPrice, t.ClosingPrice, t.NetProfit)
		}
		return w.Flush()
	}

	recs, err := s.ListDecisions(cmd.Context(), decisionsLimit)
	if err != nil {
		return fmt.Errorf("list decisions: %w", err)
	}
	if decisionsJSON {
		enc := json.NewEncoder(out)
		for _, r := range recs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOUTCOME\tREASON\tSIDE\tVOLUME\tSTOP PIPS\tDETAIL")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f\t%.1f\t%s\n",
			r.Time.Format(time.RFC3339), r.Outcome, r.Reason, r.Side, r.Volume, r.StopPips, r.Detail)
	}
	return w.Flush()
}
