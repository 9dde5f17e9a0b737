package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig(nil)
		require.NoError(t, err)
		assert.Equal(t, 1000, cfg.Rounds)
		assert.Equal(t, "limit", cfg.OrderType)
		assert.Equal(t, 5*time.Minute, cfg.StaleAfter)
		assert.Equal(t, int64(10), cfg.Strategy.MaxInventory)
		assert.Equal(t, 0.7, cfg.Flow.BuyWeight)
		assert.Equal(t, 252, cfg.Performance.PeriodsPerYear)
		assert.Empty(t, cfg.Kafka.Brokers)
	})

	t.Run("file, env and flags in increasing precedence", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mmsim.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
rounds: 50
seed: 9
strategy:
  max_inventory: 4
  skew_factor: 0.5
market:
  symbol: FILE
`), 0o600))

		t.Setenv("MMSIM_SEED", "11")
		t.Setenv("MMSIM_MARKET_SYMBOL", "ENV")

		cfg, err := loadConfig([]string{"--config", path, "--symbol", "FLAG", "--kafka-brokers", "a:9092,b:9092"})
		require.NoError(t, err)
		assert.Equal(t, 50, cfg.Rounds)
		assert.Equal(t, int64(11), cfg.Seed)
		assert.Equal(t, "FLAG", cfg.Market.Symbol)
		assert.Equal(t, int64(4), cfg.Strategy.MaxInventory)
		assert.Equal(t, 0.5, cfg.Strategy.SkewFactor)
		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := loadConfig([]string{"--rounds", "0"})
		assert.Error(t, err)

		_, err = loadConfig([]string{"--order-type", "stop"})
		assert.Error(t, err)

		_, err = loadConfig([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
		assert.Error(t, err)
	})
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "mmsim.log")

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"--rounds", "60",
		"--seed", "5",
		"--export-dir", dir,
		"--log-file", logFile,
	}, &out)
	require.NoError(t, err)

	report := out.String()
	assert.Contains(t, report, "SIMULATION SUMMARY")
	assert.Regexp(t, `\nrounds\s+60\n`, report)
	assert.Contains(t, report, "DEPTH")
	assert.Contains(t, report, "PERFORMANCE METRICS REPORT")

	for _, name := range []string{"orders.csv", "trades.csv", "rounds.csv"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.NotZero(t, info.Size(), name)
	}

	rounds, err := os.ReadFile(filepath.Join(dir, "rounds.csv"))
	require.NoError(t, err)
	assert.Equal(t, 61, bytes.Count(rounds, []byte("\n")))

	_, err = os.Stat(logFile)
	assert.NoError(t, err)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{"--rounds", "10", "--log-level", "error"}, &out))
	assert.Regexp(t, `\nrounds\s+0\n`, out.String())
}
