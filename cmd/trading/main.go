package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rxtech-lab/fxstream-trading/internal/aggregator"
	"github.com/rxtech-lab/fxstream-trading/internal/broker"
	"github.com/rxtech-lab/fxstream-trading/internal/config"
	"github.com/rxtech-lab/fxstream-trading/internal/engine"
	"github.com/rxtech-lab/fxstream-trading/internal/feed"
	"github.com/rxtech-lab/fxstream-trading/internal/indicator"
	"github.com/rxtech-lab/fxstream-trading/internal/logger"
	"github.com/rxtech-lab/fxstream-trading/internal/series"
	"github.com/rxtech-lab/fxstream-trading/internal/strategy"
	"github.com/rxtech-lab/fxstream-trading/internal/types"
	"github.com/rxtech-lab/fxstream-trading/pkg/barlog"
)

// tradingAction wires the pipeline from configuration and runs it until
// interrupted or the feed becomes unrecoverable.
func tradingAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	level, parseErr := zapcore.ParseLevel(cfg.Log.Level)
	if parseErr != nil {
		level = zapcore.InfoLevel
	}

	log, err := logger.NewLoggerWithLevel(level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	indicators, err := indicator.NewEngineWithPeriods(
		cfg.Indicator.EMAPeriod, cfg.Indicator.SMAPeriod, cfg.Indicator.RSIPeriod)
	if err != nil {
		return err
	}

	window, err := strategy.NewTradingWindow(cfg.TradingHours)
	if err != nil {
		return err
	}

	oandaBroker := broker.NewOandaBroker(
		cfg.Broker.BaseURL, cfg.Broker.AccountID, cfg.Broker.Token, cfg.Broker.Timeout, log)

	evaluator := strategy.NewEvaluator(oandaBroker, window, strategy.Params{
		RSILower:       cfg.Signal.RSILower,
		RSIUpper:       cfg.Signal.RSIUpper,
		Leverage:       cfg.Signal.Leverage,
		StopLossPips:   cfg.Signal.StopLossPips,
		TakeProfitPips: cfg.Signal.TakeProfitPips,
	}, log)

	streamURL := strings.ReplaceAll(cfg.Feed.StreamURL, "{accountID}", cfg.Broker.AccountID)
	provider := feed.NewOandaStream(streamURL, cfg.Feed.Token, cfg.Feed.Timeout, log)

	var barWriter barlog.Writer

	if cfg.BarLog.Enabled {
		outputPath := filepath.Join(cfg.BarLog.OutputDir,
			fmt.Sprintf("bars-%s.parquet", time.Now().UTC().Format("20060102-150405")))

		writer := barlog.NewDuckDBWriter(outputPath, log)
		if err := writer.Initialize(); err != nil {
			return err
		}

		defer func() {
			if _, err := writer.Finalize(); err != nil {
				log.Warn("failed to finalize bar log", zap.Error(err))
			}

			if err := writer.Close(); err != nil {
				log.Warn("failed to close bar log", zap.Error(err))
			}
		}()

		barWriter = writer
	}

	tradingEngine := engine.New(
		cfg, provider, aggregator.New(log), series.NewStore(), indicators, evaluator, barWriter, log)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	onStart := engine.OnEngineStartCallback(func(instruments []string, window time.Duration) error {
		log.Info("starting trading engine",
			zap.Strings("instruments", instruments),
			zap.Duration("window", window))

		return nil
	})

	onStop := engine.OnEngineStopCallback(func(err error) {
		if err != nil {
			log.Error("trading engine stopped", zap.Error(err))

			return
		}

		log.Info("trading engine stopped")
	})

	onSignal := engine.OnSignalCallback(func(sig types.Signal) {
		if sig.Type == types.SignalTypeNoAction {
			return
		}

		log.Info("signal emitted",
			zap.String("instrument", sig.Instrument),
			zap.String("type", string(sig.Type)),
			zap.String("reason", sig.Reason))
	})

	err = tradingEngine.Run(runCtx, engine.Callbacks{
		OnEngineStart: &onStart,
		OnEngineStop:  &onStop,
		OnSignal:      &onSignal,
	})
	if runCtx.Err() != nil {
		// Operator-initiated shutdown is a clean exit.
		return nil
	}

	return err
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	if path == "" {
		cfg := config.Default()

		if err := cfg.Validate(); err != nil {
			return nil, err
		}

		return cfg, nil
	}

	return config.Load(path)
}

func main() {
	cmd := &cli.Command{
		Name:  "trading",
		Usage: "Stream FX prices, aggregate OHLC bars, and trade RSI threshold signals",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
			},
		},
		Action: tradingAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
