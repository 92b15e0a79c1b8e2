package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vitos/trade_lifecycle/internal/config"
	"github.com/vitos/trade_lifecycle/internal/domain"
	"github.com/vitos/trade_lifecycle/internal/infrastructure/bridge"
	"github.com/vitos/trade_lifecycle/internal/infrastructure/healthcheck"
	"go.uber.org/zap"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the bridge and healthcheck before trading",
	Long: `Connects to the host bridge and reads the account, the configured symbol, every cross
rate the sizer needs and the open positions. Pings the healthcheck URL when one is set.
Nothing is traded.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Bridge: %s\n", cfg.Bridge.URL)
	client := bridge.NewClient(cfg.Bridge.URL, cfg.Bridge.RequestTimeout, zap.NewNop())
	if err := client.Connect(ctx); err != nil {
		fmt.Fprintf(out, "❌ Failed to connect: %v\n", err)
		return err
	}
	defer client.Close()

	failed := checkHost(ctx, out, cfg, client)

	if cfg.Healthcheck.URL != "" {
		pinger := healthcheck.NewPinger(cfg.Healthcheck.URL, cfg.Healthcheck.Timeout)
		if err := pinger.Ping(ctx); err != nil {
			fmt.Fprintf(out, "❌ Healthcheck ping: %v\n", err)
			failed++
		} else {
			fmt.Fprintln(out, "✅ Healthcheck ping")
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d checks failed", failed)
	}
	return nil
}

// checkHost prints one line per probe and returns the number of failures.
func checkHost(ctx context.Context, out io.Writer, cfg *config.Config, account domain.AccountProvider) int {
	failed := 0

	acct, err := account.Account(ctx)
	if err != nil {
		fmt.Fprintf(out, "❌ Failed to get account: %v\n", err)
		failed++
	} else {
		fmt.Fprintf(out, "✅ Account: Balance=%.2f %s, UsedMargin=%.2f\n", acct.Balance, acct.Currency, acct.UsedMargin)
	}

	sym, err := account.Symbol(ctx, cfg.Engine.Symbol)
	if err != nil {
		fmt.Fprintf(out, "❌ Failed to get symbol %s: %v\n", cfg.Engine.Symbol, err)
		failed++
	} else {
		fmt.Fprintf(out, "✅ Symbol %s: Quote=%s, PipSize=%g, MinVolume=%g, MarginPerMin=%.2f\n",
			sym.Name, sym.QuoteAsset, sym.PipSize, sym.MinVolume, sym.MarginPerMinVolume)
		rule, ok := cfg.QuoteConversions[sym.QuoteAsset]
		switch {
		case !ok:
			fmt.Fprintf(out, "❌ No quote conversion for %s, the engine would halt on first entry\n", sym.QuoteAsset)
			failed++
		case rule.Mode == domain.ConversionCross:
			rate, err := account.CrossRate(ctx, rule.Pair)
			if err != nil {
				fmt.Fprintf(out, "❌ Failed to get cross rate %s: %v\n", rule.Pair, err)
				failed++
			} else {
				fmt.Fprintf(out, "✅ Cross rate %s: %f\n", rule.Pair, rate)
			}
		}
	}

	open, err := account.MarketOpen(ctx)
	if err != nil {
		fmt.Fprintf(out, "❌ Failed to get market status: %v\n", err)
		failed++
	} else {
		fmt.Fprintf(out, "✅ Market open: %t\n", open)
	}

	positions, err := account.Positions(ctx)
	if err != nil {
		fmt.Fprintf(out, "❌ Failed to get positions: %v\n", err)
		failed++
	} else {
		own := 0
		for _, p := range positions {
			if p.Label == cfg.Engine.Label {
				own++
			}
		}
		fmt.Fprintf(out, "✅ Positions: %d open, %d labelled %s\n", len(positions), own, cfg.Engine.Label)
	}
	return failed
}
