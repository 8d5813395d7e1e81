package commands

import (
	"encoding/json"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"crypto-signals/config"
	"crypto-signals/internal/app"
	"crypto-signals/internal/exchange"
	"crypto-signals/internal/logger"
	"crypto-signals/internal/model"
)

var (
	compact  bool
	interval string
)

// newApp builds the full application for commands that touch storage.
var newApp = func() (*app.App, error) {
	cfg := config.Load()
	logger.Init("signalctl", logger.ParseLevel(cfg.LogLevel))
	return app.New(cfg, prometheus.NewRegistry())
}

// newMarket builds market data access for read-only commands.
var newMarket = func() model.MarketData {
	cfg := config.Load()
	client := exchange.NewClient(cfg.BinanceAPIURL, cfg.BinanceAPIKey, cfg.BinanceSecretKey)
	return exchange.NewCachedMarket(client, exchange.NewMemoryPriceCache(), 0)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "signalctl",
	Short: "Crypto signal engine control",
	Long: `signalctl runs single engine cycles for an external scheduler and
prints indicator, strategy and prediction readings for a symbol.

Cycles:
• alarms    evaluate F4 alarms and record readings
• dca       run due DCA buys and take-profit exits
• trailing  update trailing stops and sell on a breach`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&compact, "compact", false, "print single-line JSON")
	rootCmd.PersistentFlags().StringVar(&interval, "interval", "1h", "kline interval for indicator commands")
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
