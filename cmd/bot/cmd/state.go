package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vitos/trade_lifecycle/internal/infrastructure/storage"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect persisted lifecycle state",
	Long: `Lists or clears the per-position lifecycle flags kept in the SQLite store.

Subcommands:
  list   - show every stored position state
  clear  - delete the state of one position

Examples:
  bot state list
  bot state clear 123456`,
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored position states",
	Args:  cobra.NoArgs,
	RunE:  runStateList,
}

var stateClearCmd = &cobra.Command{
	Use:   "clear <position-id>",
	Short: "Delete the stored state of a position",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateClear,
}

var stateDBPath string

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateClearCmd)

	stateCmd.PersistentFlags().StringVarP(&stateDBPath, "db", "d", "", "path to SQLite store (default storage.db_path)")
}

func openStore(path string) (*storage.SQLiteStore, error) {
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Storage.DBPath
	}
	s, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return s, nil
}

func runStateList(cmd *cobra.Command, args []string) error {
	s, err := openStore(stateDBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	states, err := s.ListPositionStates(cmd.Context())
	if err != nil {
		return fmt.Errorf("list states: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POSITION\tLABEL\tMOVING STOP\tEARLY PROFIT\tUPDATED")
	for _, st := range states {
		fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%s\n",
			st.PositionID, st.Label, st.MovingStopActivated, st.EarlyProfitTaken, st.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runStateClear(cmd *cobra.Command, args []string) error {
	s, err := openStore(stateDBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeletePositionState(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", args[0])
	return nil
}
