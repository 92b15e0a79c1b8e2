package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vitos/trade_lifecycle/internal/config"
	"github.com/vitos/trade_lifecycle/internal/domain"
	"github.com/vitos/trade_lifecycle/internal/infrastructure/feed"
	"github.com/vitos/trade_lifecycle/internal/infrastructure/paper"
	"github.com/vitos/trade_lifecycle/internal/infrastructure/storage"
	"github.com/vitos/trade_lifecycle/internal/usecase"
	"go.uber.org/zap"
)

var simCmd = &cobra.Command{
	Use:   "sim <bars.csv>",
	Short: "Replay historical bars against the paper broker",
	Long: `Replays a CSV of OHLC bars (time,open,high,low,close) through the engine with a paper
broker as the host. Lifecycle state is kept in memory and liveness pings are disabled.

Examples:
  bot sim data/eurusd_m1.csv
  bot sim data/eurusd_m1.csv --journal sim.db`,
	Args: cobra.ExactArgs(1),
	RunE: runSim,
}

var simJournalPath string

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.Flags().StringVarP(&simJournalPath, "journal", "j", "", "write decisions and trades to this SQLite file")
}

func runSim(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	bars, err := feed.OpenCSV(args[0])
	if err != nil {
		return fmt.Errorf("open bars: %w", err)
	}
	defer bars.Close()

	var journal domain.DecisionJournal = storage.NopStore{}
	if simJournalPath != "" {
		db, err := storage.NewSQLiteStore(simJournalPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer db.Close()
		journal = db
	}

	broker, err := newPaperBroker(cfg)
	if err != nil {
		return err
	}
	engine, _, err := buildEngine(cfg, engineParts{
		host:       broker,
		store:      storage.NopStore{},
		journal:    journal,
		simulation: true,
	}, log)
	if err != nil {
		return err
	}

	n, err := replay(cmd.Context(), engine, broker, bars, log)
	if err != nil && !errors.Is(err, domain.ErrHalted) {
		return err
	}
	return printSimSummary(cmd.OutOrStdout(), broker, n, err)
}

func newPaperBroker(cfg *config.Config) (*paper.Broker, error) {
	return paper.NewBroker(paper.Config{
		Balance:     cfg.Paper.Balance,
		Currency:    cfg.Paper.Currency,
		Symbol:      cfg.PaperSymbol(),
		MinStopPips: cfg.Paper.MinStopPips,
		MarginRate:  cfg.Paper.MarginRate,
		CrossRates:  cfg.Paper.CrossRates,
	})
}

type barSource interface {
	Next() (domain.Bar, bool, error)
}

// replay feeds bars one at a time: exits inside the bar are settled and delivered before the
// engine sees the bar itself. It stops early when the engine halts.
func replay(ctx context.Context, engine *usecase.Engine, broker *paper.Broker, bars barSource, log *zap.Logger) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, nil
		}
		bar, ok, err := bars.Next()
		if err != nil {
			return n, fmt.Errorf("bar %d: %w", n+1, err)
		}
		if !ok {
			return n, nil
		}
		n++

		broker.OnBar(bar)
		for _, ev := range broker.DrainEvents() {
			if err := handle(ctx, engine, ev, log); err != nil {
				return n, err
			}
		}
		b := bar
		if err := handle(ctx, engine, domain.Event{Kind: domain.EventBar, At: time.Unix(bar.OpenTime, 0).UTC(), Bar: &b}, log); err != nil {
			return n, err
		}
		// Orders placed on this bar may already have changed protection.
		for _, ev := range broker.DrainEvents() {
			if err := handle(ctx, engine, ev, log); err != nil {
				return n, err
			}
		}
	}
}

func handle(ctx context.Context, engine *usecase.Engine, ev domain.Event, log *zap.Logger) error {
	err := engine.Handle(ctx, ev)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrHalted) {
		return err
	}
	log.Warn("Failed to handle event", zap.String("kind", string(ev.Kind)), zap.Error(err))
	return nil
}

func printSimSummary(w io.Writer, broker *paper.Broker, bars int, haltErr error) error {
	ctx := context.Background()
	acct, err := broker.Account(ctx)
	if err != nil {
		return err
	}
	history, err := broker.History(ctx)
	if err != nil {
		return err
	}
	open, err := broker.Positions(ctx)
	if err != nil {
		return err
	}

	wins := 0
	net := 0.0
	for _, t := range history {
		net += t.NetProfit
		if t.NetProfit > 0 {
			wins++
		}
	}

	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, "bars:      %d\n", bars)
	fmt.Fprintf(w, "trades:    %d (%d winning)\n", len(history), wins)
	fmt.Fprintf(w, "open:      %d\n", len(open))
	fmt.Fprintf(w, "net:       %.2f %s\n", net, acct.Currency)
	fmt.Fprintf(w, "balance:   %.2f %s\n", acct.Balance, acct.Currency)
	if haltErr != nil {
		fmt.Fprintf(w, "halted:    %v\n", haltErr)
	}
	return nil
}
