// Package summary turns a user's raw transaction history into the structured
// financial summary that feeds the AI insight prompts. Everything here is a
// pure function of its inputs plus a single asOf timestamp captured by the
// caller, so the whole computation is deterministic under test.
package summary

import (
	"math"
	"sort"
	"time"

	"github.com/dkachan/finsight/internal/domain"
)

// Number of calendar months covered by the monthly series and by the fixed
// divisor used for monthly averages. Months without data are zero-filled and
// still count toward the average; that is deliberate, the prompts rely on it.
const seriesMonths = 6

// Minimum transaction volume inside the trailing 3 months before each insight
// kind is worth sending to the model.
const (
	FullAnalysisMinExpenses = 10
	FullAnalysisMinIncomes  = 3
	PredictionMinExpenses   = 10
	PatternsMinExpenses     = 5
)

// Trend labels the direction of recent monthly spending.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Totals covers the full history, not any rolling window. Balance may go
// negative; the component sums never do.
type Totals struct {
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Balance  float64 `json:"balance"`
}

// MonthlyAverages are 6-month windowed sums divided by a fixed 6.
type MonthlyAverages struct {
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
}

// BucketStat is one row of the category (expense) or source (income)
// breakdown over the trailing 6 months.
type BucketStat struct {
	Label                 string  `json:"label"`
	Total                 float64 `json:"total"`
	AveragePerTransaction float64 `json:"averagePerTransaction"`
	TransactionCount      int     `json:"transactionCount"`
	PercentOfTotal        float64 `json:"percentOfTotal"`
	MonthlyAverage        float64 `json:"monthlyAverage"`
}

// MonthEntry is one calendar month of the series, oldest first.
type MonthEntry struct {
	Month            string  `json:"month"`
	Income           float64 `json:"income"`
	Expenses         float64 `json:"expenses"`
	Balance          float64 `json:"balance"`
	TransactionCount int     `json:"transactionCount"`
}

// Sufficiency reports whether there is enough recent history for a full
// analysis, together with the counts the UI needs to render progress toward
// the thresholds.
type Sufficiency struct {
	IsSufficient       bool `json:"isSufficient"`
	ExpenseCount       int  `json:"expenseCount"`
	IncomeCount        int  `json:"incomeCount"`
	RecentExpenseCount int  `json:"recentExpenseCount"`
	RecentIncomeCount  int  `json:"recentIncomeCount"`
}

// Summary is the derived financial picture for one user. It is recomputed on
// every request and never persisted.
type Summary struct {
	AsOf              time.Time       `json:"asOf"`
	Totals            Totals          `json:"totals"`
	MonthlyAverages   MonthlyAverages `json:"monthlyAverages"`
	CategoryBreakdown []BucketStat    `json:"categoryBreakdown"`
	SourceBreakdown   []BucketStat    `json:"sourceBreakdown"`
	MonthlySeries     []MonthEntry    `json:"monthlySeries"`
	Volatility        float64         `json:"volatility"`
	Trend             Trend           `json:"trend"`
	Sufficiency       Sufficiency     `json:"dataSufficiency"`
}

// Build computes the full summary from two unordered transaction lists. The
// lists are the user's entire history; windowing happens here, anchored to
// asOf.
func Build(expenses, incomes []domain.Transaction, asOf time.Time) *Summary {
	sixMonthsAgo := asOf.AddDate(0, -seriesMonths, 0)
	threeMonthsAgo := asOf.AddDate(0, -3, 0)

	windowedExpenses := filterSince(expenses, sixMonthsAgo)
	windowedIncomes := filterSince(incomes, sixMonthsAgo)

	s := &Summary{
		AsOf: asOf,
		Totals: Totals{
			Income:   sumAmounts(incomes),
			Expenses: sumAmounts(expenses),
		},
		MonthlyAverages: MonthlyAverages{
			Income:   sumAmounts(windowedIncomes) / seriesMonths,
			Expenses: sumAmounts(windowedExpenses) / seriesMonths,
		},
		CategoryBreakdown: breakdown(windowedExpenses),
		SourceBreakdown:   breakdown(windowedIncomes),
		MonthlySeries:     monthlySeries(expenses, incomes, asOf),
	}
	s.Totals.Balance = s.Totals.Income - s.Totals.Expenses

	monthlyExpenses := make([]float64, 0, len(s.MonthlySeries))
	for _, m := range s.MonthlySeries {
		monthlyExpenses = append(monthlyExpenses, m.Expenses)
	}
	s.Volatility = populationStdDev(monthlyExpenses)
	s.Trend = trendOf(s.MonthlySeries)

	s.Sufficiency = Sufficiency{
		ExpenseCount:       len(expenses),
		IncomeCount:        len(incomes),
		RecentExpenseCount: len(filterSince(expenses, threeMonthsAgo)),
		RecentIncomeCount:  len(filterSince(incomes, threeMonthsAgo)),
	}
	s.Sufficiency.IsSufficient = s.Sufficiency.RecentExpenseCount >= FullAnalysisMinExpenses &&
		s.Sufficiency.RecentIncomeCount >= FullAnalysisMinIncomes

	return s
}

// SufficientForPrediction reports whether the expense-prediction flow has
// enough recent expenses. It has no income requirement.
func (s *Summary) SufficientForPrediction() bool {
	return s.Sufficiency.RecentExpenseCount >= PredictionMinExpenses
}

// SufficientForPatterns reports whether the spending-pattern flow has enough
// recent expenses.
func (s *Summary) SufficientForPatterns() bool {
	return s.Sufficiency.RecentExpenseCount >= PatternsMinExpenses
}

func filterSince(txs []domain.Transaction, since time.Time) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(txs))
	for _, t := range txs {
		if !t.Date.Before(since) {
			out = append(out, t)
		}
	}
	return out
}

func sumAmounts(txs []domain.Transaction) float64 {
	var total float64
	for _, t := range txs {
		total += t.Amount
	}
	return total
}

// breakdown groups 6-month-windowed transactions by label and sorts the
// buckets by descending total. Percentages are of the windowed total and all
// zero when that total is zero.
func breakdown(windowed []domain.Transaction) []BucketStat {
	type bucket struct {
		total float64
		count int
	}
	buckets := make(map[string]*bucket)
	var windowTotal float64

	for _, t := range windowed {
		label := t.Category()
		b, ok := buckets[label]
		if !ok {
			b = &bucket{}
			buckets[label] = b
		}
		b.total += t.Amount
		b.count++
		windowTotal += t.Amount
	}

	stats := make([]BucketStat, 0, len(buckets))
	for label, b := range buckets {
		stat := BucketStat{
			Label:                 label,
			Total:                 b.total,
			AveragePerTransaction: b.total / float64(b.count),
			TransactionCount:      b.count,
			MonthlyAverage:        b.total / seriesMonths,
		}
		if windowTotal > 0 {
			stat.PercentOfTotal = b.total / windowTotal * 100
		}
		stats = append(stats, stat)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Total != stats[j].Total {
			return stats[i].Total > stats[j].Total
		}
		return stats[i].Label < stats[j].Label
	})

	return stats
}

// monthlySeries builds exactly seriesMonths entries, oldest to newest, from
// the unwindowed lists. Month boundaries are calendar-accurate: the first of
// the month through the first of the next month, exclusive.
func monthlySeries(expenses, incomes []domain.Transaction, asOf time.Time) []MonthEntry {
	series := make([]MonthEntry, 0, seriesMonths)
	firstOfCurrent := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, asOf.Location())

	for i := seriesMonths - 1; i >= 0; i-- {
		start := firstOfCurrent.AddDate(0, -i, 0)
		end := start.AddDate(0, 1, 0)

		entry := MonthEntry{Month: start.Format("2006-01")}
		for _, t := range expenses {
			if inMonth(t.Date, start, end) {
				entry.Expenses += t.Amount
				entry.TransactionCount++
			}
		}
		for _, t := range incomes {
			if inMonth(t.Date, start, end) {
				entry.Income += t.Amount
				entry.TransactionCount++
			}
		}
		entry.Balance = entry.Income - entry.Expenses
		series = append(series, entry)
	}

	return series
}

func inMonth(d, start, end time.Time) bool {
	return !d.Before(start) && d.Before(end)
}

// populationStdDev divides by N, not N-1. The series is the whole population
// of months under consideration, not a sample.
func populationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// trendOf compares the earlier half of the last 3 monthly expense totals
// against the later half. With 3 entries the split point is floor(3/2)=1:
// first month vs the average of the last two.
func trendOf(series []MonthEntry) Trend {
	if len(series) < 2 {
		return TrendStable
	}
	recent := series
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}

	half := len(recent) / 2
	firstAvg := avgExpenses(recent[:half])
	secondAvg := avgExpenses(recent[half:])

	if firstAvg == 0 {
		if secondAvg > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}

	change := (secondAvg - firstAvg) / firstAvg
	switch {
	case change > 0.10:
		return TrendIncreasing
	case change < -0.10:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func avgExpenses(entries []MonthEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += e.Expenses
	}
	return sum / float64(len(entries))
}

// RecentTransactions returns up to limit transactions dated within the last
// calendar month before asOf, newest first.
func RecentTransactions(txs []domain.Transaction, asOf time.Time, limit int) []domain.Transaction {
	windowed := filterSince(txs, asOf.AddDate(0, -1, 0))
	sort.Slice(windowed, func(i, j int) bool {
		return windowed[i].Date.After(windowed[j].Date)
	})
	if len(windowed) > limit {
		windowed = windowed[:limit]
	}
	return windowed
}

// LargestTransactions returns up to limit transactions dated within the last
// 3 months before asOf, biggest amount first.
func LargestTransactions(txs []domain.Transaction, asOf time.Time, limit int) []domain.Transaction {
	windowed := filterSince(txs, asOf.AddDate(0, -3, 0))
	sort.Slice(windowed, func(i, j int) bool {
		return windowed[i].Amount > windowed[j].Amount
	})
	if len(windowed) > limit {
		windowed = windowed[:limit]
	}
	return windowed
}
