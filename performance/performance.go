// Package performance computes risk-adjusted statistics over a P&L series.
package performance

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/montanaflynn/stats"
)

const (
	DefaultRiskFreeRate    = 0.02
	DefaultStartingCapital = 10000
	DefaultPeriodsPerYear  = 252

	// mean absolute period return below which the series is treated as
	// high frequency and periods per year are re-estimated
	highFrequencyThreshold = 0.001
	extremeSharpe          = 10

	sortinoCap      = 10
	profitFactorCap = 1000
)

// Params describes the series being measured.
type Params struct {
	StartingCapital float64
	PeriodsPerYear  int
	// TimePeriodDays, when positive, annualizes by compounding over calendar
	// time instead of scaling by periods.
	TimePeriodDays int
}

// DefaultParams returns a 10,000 capital base with daily periods.
func DefaultParams() Params {
	return Params{
		StartingCapital: DefaultStartingCapital,
		PeriodsPerYear:  DefaultPeriodsPerYear,
	}
}

// Metrics holds the calculated figures. Returns, drawdown, volatility, win
// rate and VaR are percentages.
type Metrics struct {
	SharpeRatio         float64 `json:"sharpe_ratio"`
	SortinoRatio        float64 `json:"sortino_ratio"`
	MaxDrawdown         float64 `json:"max_drawdown"`
	MaxDrawdownDuration int     `json:"max_drawdown_duration"`
	WinRate             float64 `json:"win_rate"`
	ProfitFactor        float64 `json:"profit_factor"`
	TotalReturn         float64 `json:"total_return"`
	AnnualizedReturn    float64 `json:"annualized_return"`
	Volatility          float64 `json:"volatility"`
	CalmarRatio         float64 `json:"calmar_ratio"`
	VaR95               float64 `json:"var_95"`
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithRiskFreeRate sets the annual risk-free rate.
func WithRiskFreeRate(rate float64) Option {
	return func(c *Calculator) {
		c.riskFreeRate = rate
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Calculator) {
		c.logger = l
	}
}

// Calculator is stateless between calls.
type Calculator struct {
	riskFreeRate float64
	logger       *slog.Logger
}

func New(opts ...Option) *Calculator {
	c := &Calculator{
		riskFreeRate: DefaultRiskFreeRate,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Returns converts cumulative P&L into period returns on the equity curve.
// Periods whose starting equity is not positive are skipped.
func Returns(pnl []float64, startingCapital float64) []float64 {
	if len(pnl) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(pnl)-1)
	for i := 1; i < len(pnl); i++ {
		prev := startingCapital + pnl[i-1]
		if prev <= 0 {
			continue
		}
		r := (startingCapital + pnl[i] - prev) / prev
		if math.IsInf(r, 0) || math.IsNaN(r) {
			continue
		}
		returns = append(returns, r)
	}
	return returns
}

// Sharpe returns the annualized Sharpe ratio. Very small average returns are
// taken as high-frequency data and annualized over len(returns)*10 periods.
func (c *Calculator) Sharpe(returns []float64, periodsPerYear int) float64 {
	if len(returns) < 2 {
		return 0
	}

	periods := float64(periodsPerYear)
	if meanAbs(returns) < highFrequencyThreshold {
		periods = float64(len(returns) * 10)
		c.logger.Debug("high frequency returns detected", "periods_per_year", periods)
	}

	excess := shift(returns, c.riskFreeRate/periods)
	sd := populationStd(excess)
	if sd == 0 {
		return 0
	}

	sharpe := mean(excess) / sd * math.Sqrt(periods)
	if math.Abs(sharpe) > extremeSharpe {
		c.logger.Warn("extreme sharpe ratio, recalculating without risk-free rate", "sharpe", sharpe)
		sd = populationStd(returns)
		if sd == 0 {
			return 0
		}
		sharpe = mean(returns) / sd * math.Sqrt(math.Min(periods, DefaultPeriodsPerYear))
	}
	return sharpe
}

// Sortino is Sharpe with downside deviation in the denominator. With no
// losing period it is capped at 10 when the mean excess return is positive.
func (c *Calculator) Sortino(returns []float64, periodsPerYear int) float64 {
	if len(returns) < 2 {
		return 0
	}

	excess := shift(returns, c.riskFreeRate/float64(periodsPerYear))
	var downside []float64
	for _, r := range excess {
		if r < 0 {
			downside = append(downside, r)
		}
	}

	if len(downside) == 0 {
		if mean(excess) > 0 {
			return sortinoCap
		}
		return 0
	}

	sd := populationStd(downside)
	if sd == 0 {
		return 0
	}
	return mean(excess) / sd * math.Sqrt(float64(periodsPerYear))
}

// MaxDrawdown scans the equity curve for the deepest fractional decline from
// a running peak and the longest run of periods without a new peak.
func MaxDrawdown(equity []float64) (float64, int) {
	if len(equity) < 2 {
		return 0, 0
	}

	peak := equity[0]
	maxDD := 0.0
	duration, current := 0, 0
	for _, v := range equity {
		if v > peak {
			peak = v
			current = 0
			continue
		}
		if peak > 0 {
			maxDD = math.Max(maxDD, (peak-v)/peak)
		}
		current++
		duration = max(duration, current)
	}
	return maxDD, duration
}

// WinRate is the fraction of positive trade returns.
func WinRate(trades []float64) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, r := range trades {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

// ProfitFactor is gross profit over gross loss, capped at 1000 when nothing was lost.
func ProfitFactor(trades []float64) float64 {
	if len(trades) == 0 {
		return 0
	}

	var profit, loss float64
	for _, r := range trades {
		if r > 0 {
			profit += r
		} else {
			loss -= r
		}
	}

	if loss == 0 {
		if profit > 0 {
			return profitFactorCap
		}
		return 1
	}
	return profit / loss
}

// ValueAtRisk returns the (1-confidence) nearest-rank percentile of returns.
func ValueAtRisk(returns []float64, confidence float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	v, err := stats.PercentileNearestRank(returns, (1-confidence)*100)
	if err != nil {
		return 0
	}
	return v
}

// Calculate derives every metric from a cumulative P&L series and optional
// per-trade returns.
func (c *Calculator) Calculate(pnl []float64, tradeReturns []float64, p Params) Metrics {
	if p.PeriodsPerYear <= 0 {
		p.PeriodsPerYear = DefaultPeriodsPerYear
	}

	returns := Returns(pnl, p.StartingCapital)
	equity := make([]float64, len(pnl))
	for i, v := range pnl {
		equity[i] = p.StartingCapital + v
	}

	var totalReturn float64
	if len(equity) > 0 && equity[0] != 0 {
		totalReturn = (equity[len(equity)-1] - equity[0]) / equity[0]
	}

	var annualized float64
	switch {
	case p.TimePeriodDays > 0:
		years := float64(p.TimePeriodDays) / 365.25
		if 1+totalReturn > 0 {
			annualized = math.Pow(1+totalReturn, 1/years) - 1
		}
		if math.IsInf(annualized, 0) || math.IsNaN(annualized) {
			annualized = 0
		}
	case len(returns) > 0:
		annualized = totalReturn * (float64(p.PeriodsPerYear) / float64(len(returns)))
	}

	maxDD, ddDuration := MaxDrawdown(equity)

	var volatility float64
	if len(returns) > 0 {
		volatility = populationStd(returns) * math.Sqrt(float64(p.PeriodsPerYear))
	}

	var calmar float64
	if maxDD > 0 {
		calmar = annualized / maxDD
	}

	var winRate, profitFactor float64
	if len(tradeReturns) > 0 {
		winRate = WinRate(tradeReturns)
		profitFactor = ProfitFactor(tradeReturns)
	}

	var95 := ValueAtRisk(returns, 0.95)
	if allNonNegative(returns) {
		var95 = 0
	}

	return Metrics{
		SharpeRatio:         round(c.Sharpe(returns, p.PeriodsPerYear), 3),
		SortinoRatio:        round(c.Sortino(returns, p.PeriodsPerYear), 3),
		MaxDrawdown:         round(maxDD*100, 2),
		MaxDrawdownDuration: ddDuration,
		WinRate:             round(winRate*100, 2),
		ProfitFactor:        round(profitFactor, 3),
		TotalReturn:         round(totalReturn*100, 2),
		AnnualizedReturn:    round(annualized*100, 2),
		Volatility:          round(volatility*100, 2),
		CalmarRatio:         round(calmar, 3),
		VaR95:               round(var95*100, 3),
	}
}

// Assessment grades the Sharpe ratio and maximum drawdown.
func (m Metrics) Assessment() []string {
	var sharpe string
	switch {
	case m.SharpeRatio > 2:
		sharpe = "Sharpe Ratio: EXCELLENT (>2.0)"
	case m.SharpeRatio > 1:
		sharpe = "Sharpe Ratio: GOOD (1.0-2.0)"
	case m.SharpeRatio > 0.5:
		sharpe = "Sharpe Ratio: ACCEPTABLE (0.5-1.0)"
	default:
		sharpe = "Sharpe Ratio: POOR (<0.5)"
	}

	var dd string
	switch {
	case m.MaxDrawdown < 5:
		dd = "Max Drawdown: EXCELLENT (<5%)"
	case m.MaxDrawdown < 10:
		dd = "Max Drawdown: GOOD (5-10%)"
	case m.MaxDrawdown < 20:
		dd = "Max Drawdown: ACCEPTABLE (10-20%)"
	default:
		dd = "Max Drawdown: HIGH RISK (>20%)"
	}

	return []string{sharpe, dd}
}

// Report writes a fixed-width text report.
func (m Metrics) Report(w io.Writer) error {
	sortino := fmt.Sprintf("%8.3f", m.SortinoRatio)
	if m.SortinoRatio >= sortinoCap {
		sortino = ">10.000"
	}
	pf := fmt.Sprintf("%8.3f", m.ProfitFactor)
	if m.ProfitFactor >= profitFactorCap {
		pf = ">1000.0"
	}

	lines := []string{
		"PERFORMANCE METRICS REPORT",
		"",
		"Return",
		fmt.Sprintf("  Total Return:       %8.2f%%", m.TotalReturn),
		fmt.Sprintf("  Annualized Return:  %8.2f%%", m.AnnualizedReturn),
		"Risk Adjusted",
		fmt.Sprintf("  Sharpe Ratio:       %8.3f", m.SharpeRatio),
		fmt.Sprintf("  Sortino Ratio:      %s", sortino),
		fmt.Sprintf("  Calmar Ratio:       %8.3f", m.CalmarRatio),
		"Risk",
		fmt.Sprintf("  Max Drawdown:       %8.2f%%", m.MaxDrawdown),
		fmt.Sprintf("  DD Duration:        %8d periods", m.MaxDrawdownDuration),
		fmt.Sprintf("  Volatility:         %8.2f%%", m.Volatility),
		fmt.Sprintf("  VaR (95%%):          %8.3f%%", m.VaR95),
		"Trades",
		fmt.Sprintf("  Win Rate:           %8.2f%%", m.WinRate),
		fmt.Sprintf("  Profit Factor:      %s", pf),
		"Assessment",
	}
	for _, a := range m.Assessment() {
		lines = append(lines, "  "+a)
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func mean(x []float64) float64 {
	m, err := stats.Mean(x)
	if err != nil {
		return 0
	}
	return m
}

func meanAbs(x []float64) float64 {
	abs := make([]float64, len(x))
	for i, v := range x {
		abs[i] = math.Abs(v)
	}
	return mean(abs)
}

func populationStd(x []float64) float64 {
	sd, err := stats.StandardDeviationPopulation(x)
	if err != nil {
		return 0
	}
	return sd
}

func shift(x []float64, by float64) []float64 {
	result := make([]float64, len(x))
	for i, v := range x {
		result[i] = v - by
	}
	return result
}

func allNonNegative(x []float64) bool {
	if len(x) == 0 {
		return false
	}
	for _, v := range x {
		if v < 0 {
			return false
		}
	}
	return true
}

func round(x float64, places int) float64 {
	r, err := stats.Round(x, places)
	if err != nil {
		return 0
	}
	return r
}
