// Command mmsim runs a market-making strategy against a simulated market and
// reports its performance.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Krish-B-Shah/order-book-trading-bot"
	"github.com/Krish-B-Shah/order-book-trading-bot/export"
	"github.com/Krish-B-Shah/order-book-trading-bot/kafkalog"
	"github.com/Krish-B-Shah/order-book-trading-bot/performance"
	"github.com/Krish-B-Shah/order-book-trading-bot/simulation"
	"github.com/Krish-B-Shah/order-book-trading-bot/strategy"
	"github.com/Krish-B-Shah/order-book-trading-bot/stream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

// simulated session open; the feed advances one minute per round from here
var sessionStart = time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("mmsim failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	logger, closeLog := newLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)
	match.SetLogger(logger)

	clock := simulation.NewClock(sessionStart)
	depth := match.NewAggregatedBook()
	publishers := match.MultiPublishLog{depth}

	if len(cfg.Kafka.Brokers) > 0 {
		pub := kafkalog.NewPublisher(kafkalog.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), kafkalog.WithLogger(logger))
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Warn("close kafka writer", "error", err)
			}
		}()
		publishers = append(publishers, pub)
		logger.Info("publishing book logs to kafka", "brokers", strings.Join(cfg.Kafka.Brokers, ","), "topic", cfg.Kafka.Topic)
	}

	book := match.NewOrderBook(
		match.WithMarketID(cfg.Market.Symbol),
		match.WithClock(clock.Now),
		match.WithPublishLog(publishers),
		match.WithFallbackMark(decimal.NewFromFloat(cfg.Market.StartPrice)),
	)
	strat := strategy.New(book, strategyOptions(cfg, logger, clock)...)

	feed := simulation.NewGBMFeed(cfg.Market.StartPrice, cfg.Market.Drift, cfg.Market.Volatility,
		decimal.NewFromFloat(cfg.Market.Spread), cfg.Seed, sessionStart)

	flow := simulation.NewOrderFlow(cfg.Seed + 1)
	flow.PerRound = cfg.Flow.PerRound
	flow.SkipProbability = cfg.Flow.SkipProbability
	flow.BuyWeight = cfg.Flow.BuyWeight
	flow.MaxQuantity = cfg.Flow.MaxQuantity

	registry := prometheus.NewRegistry()
	metrics := simulation.NewMetrics("mmsim")
	if err := metrics.Register(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	status := stream.NewServer(stream.WithLogger(logger))

	runner := simulation.NewRunner(book, strat, feed,
		simulation.WithRounds(cfg.Rounds),
		simulation.WithOrderType(match.OrderType(cfg.OrderType)),
		simulation.WithOrderFlow(flow),
		simulation.WithStaleAfter(cfg.StaleAfter),
		simulation.WithMetrics(metrics),
		simulation.WithObserver(status.Observe),
		simulation.WithClock(clock),
		simulation.WithLogger(logger),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		status.Routes(mux)
		srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			logger.Info("http server listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var result *simulation.Result
	g.Go(func() error {
		defer cancel()

		res, err := runner.Run(gctx)
		result = res
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		if cfg.Hold && cfg.HTTP.Addr != "" && err == nil {
			logger.Info("run complete, holding http endpoints until interrupted")
			<-gctx.Done()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if result == nil {
		return errors.New("simulation produced no result")
	}

	calc := performance.New(performance.WithRiskFreeRate(cfg.Performance.RiskFreeRate), performance.WithLogger(logger))
	perf := calc.Calculate(result.PnLSeries(), result.TradeReturns(), performance.Params{
		StartingCapital: cfg.Strategy.StartingCash,
		PeriodsPerYear:  cfg.Performance.PeriodsPerYear,
	})

	if err := report(out, result, book, depth, perf); err != nil {
		return err
	}

	if cfg.Export.Dir != "" {
		if err := exportRun(cfg.Export.Dir, result); err != nil {
			return err
		}
		logger.Info("run exported", "dir", cfg.Export.Dir)
	}
	return nil
}

func strategyOptions(cfg *Config, logger *slog.Logger, clock *simulation.Clock) []strategy.Option {
	s := cfg.Strategy
	opts := []strategy.Option{
		strategy.WithLogger(logger),
		strategy.WithClock(clock.Now),
		strategy.WithStartingCash(decimal.NewFromFloat(s.StartingCash)),
		strategy.WithMaxInventory(s.MaxInventory),
		strategy.WithOrderSize(s.OrderSize),
		strategy.WithHalfSpread(decimal.NewFromFloat(s.HalfSpread)),
		strategy.WithSpreadMultiplier(decimal.NewFromFloat(s.SpreadMultiplier)),
		strategy.WithSkewFactor(decimal.NewFromFloat(s.SkewFactor)),
		strategy.WithVolatility(s.VolatilityWindow, s.VolatilityLow, s.VolatilityHigh),
		strategy.WithDrawdownLimits(decimal.NewFromFloat(s.MaxLoss), s.MaxDrawdownPct),
		strategy.WithInventoryPenalty(decimal.NewFromFloat(s.InventoryPenalty)),
		strategy.WithTransactionCost(decimal.NewFromFloat(s.TransactionCost)),
	}
	if s.SellOnlyWhenLong {
		opts = append(opts, strategy.WithSellOnlyWhenFlatOrLong())
	}
	if s.ShortSkipProbability > 0 {
		opts = append(opts, strategy.WithShortSkipProbability(s.ShortSkipProbability, rand.New(rand.NewSource(cfg.Seed+2))))
	}
	return opts
}

func newLogger(cfg LogConfig) (*slog.Logger, func()) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closer := func() {}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		w = lj
		closer = func() { _ = lj.Close() }
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), closer
}

func report(out io.Writer, result *simulation.Result, book *match.OrderBook, depth *match.AggregatedBook, perf performance.Metrics) error {
	final := result.Final

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SIMULATION SUMMARY")
	fmt.Fprintf(tw, "run\t%s\n", result.RunID)
	fmt.Fprintf(tw, "rounds\t%d\n", len(result.Rounds))
	fmt.Fprintf(tw, "trades\t%d\n", len(result.Trades))
	fmt.Fprintf(tw, "orders\t%d\n", len(result.Orders))
	fmt.Fprintf(tw, "cash\t%s\n", final.Cash.StringFixed(2))
	fmt.Fprintf(tw, "inventory\t%d\n", final.Inventory)
	fmt.Fprintf(tw, "pnl\t%s\n", final.PnL.StringFixed(2))
	fmt.Fprintf(tw, "realized pnl\t%s\n", final.RealizedPnL.StringFixed(2))
	fmt.Fprintf(tw, "fees\t%s\n", final.Fees.StringFixed(2))
	fmt.Fprintf(tw, "risk adjusted pnl\t%s\n", final.AdjustedPnL.StringFixed(2))
	fmt.Fprintf(tw, "wins / losses\t%d / %d\n", final.Wins, final.Losses)
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "DEPTH")
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BID SIZE\tBID\tASK\tASK SIZE")
	bids, asks := depth.Levels(match.Buy, 5), depth.Levels(match.Sell, 5)
	for i := 0; i < max(len(bids), len(asks)); i++ {
		var row [4]string
		if i < len(bids) {
			row[0], row[1] = fmt.Sprint(bids[i].Size), bids[i].Price.StringFixed(2)
		}
		if i < len(asks) {
			row[2], row[3] = asks[i].Price.StringFixed(2), fmt.Sprint(asks[i].Size)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row[0], row[1], row[2], row[3])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	if err := book.PrintBook(out); err != nil {
		return err
	}

	fmt.Fprintln(out)
	return perf.Report(out)
}

func exportRun(dir string, result *simulation.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"orders.csv", func(w io.Writer) error { return export.WriteOrders(w, result.Orders) }},
		{"trades.csv", func(w io.Writer) error { return export.WriteTrades(w, result.Trades) }},
		{"rounds.csv", func(w io.Writer) error { return export.WriteRounds(w, result.Rounds) }},
	}

	for _, f := range files {
		if err := writeFile(filepath.Join(dir, f.name), f.write); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(fh); err != nil {
		_ = fh.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return fh.Close()
}
