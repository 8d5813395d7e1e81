package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"crypto-signals/internal/indicator"
	"crypto-signals/internal/model"
	"crypto-signals/internal/strategy"
)

const klineLimit = 200

var f4Cmd = &cobra.Command{
	Use:   "f4 SYMBOL",
	Short: "Print the F4 reading for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol := strings.ToUpper(args[0])
		candles, err := newMarket().Klines(cmd.Context(), symbol, interval, klineLimit)
		if err != nil {
			return &model.MarketDataError{Symbol: symbol, Err: err}
		}
		res, err := indicator.CalculateF4(candles, indicator.DefaultF4Params())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{"symbol": symbol, "f4": res})
	},
}

var analyzeParams map[string]string

var analyzeCmd = &cobra.Command{
	Use:   "analyze TYPE SYMBOL",
	Short: "Evaluate a strategy on recent hourly closes",
	Long:  "Evaluate rsi, macd or ma_crossover on a symbol. Override parameters with --param name=value.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := strategy.Params{}
		for k, v := range analyzeParams {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("parameter %s: %w", k, err)
			}
			params[k] = f
		}
		strat, err := strategy.New(strategy.Type(strings.ToLower(args[0])), params)
		if err != nil {
			return err
		}
		res, err := strategy.Analyze(cmd.Context(), newMarket(), strings.ToUpper(args[1]), strat, time.Now())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict SYMBOL",
	Short: "Print the next-hour price prediction for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol := strings.ToUpper(args[0])
		candles, err := newMarket().Klines(cmd.Context(), symbol, interval, klineLimit)
		if err != nil {
			return &model.MarketDataError{Symbol: symbol, Err: err}
		}
		pred, err := indicator.Predict(model.Closes(candles), time.Now())
		if err != nil {
			return fmt.Errorf("predict %s: %w", symbol, err)
		}
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{"symbol": symbol, "prediction": pred})
	},
}

func init() {
	analyzeCmd.Flags().StringToStringVar(&analyzeParams, "param", nil, "strategy parameter, e.g. --param rsiPeriod=14")
	rootCmd.AddCommand(f4Cmd, analyzeCmd, predictCmd)
}
