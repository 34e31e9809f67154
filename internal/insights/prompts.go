package insights

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dkachan/finsight/internal/domain"
	"github.com/dkachan/finsight/internal/summary"
)

// How much raw transaction detail rides along with the aggregates.
const (
	recentTransactionLimit  = 20
	largestTransactionLimit = 10
)

// promptTransaction is the trimmed projection of a transaction embedded in
// prompts. Icons and IDs are noise to the model.
type promptTransaction struct {
	Date   string  `json:"date"`
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
	Kind   string  `json:"kind"`
}

func projectTransactions(txs []domain.Transaction) []promptTransaction {
	out := make([]promptTransaction, 0, len(txs))
	for _, t := range txs {
		out = append(out, promptTransaction{
			Date:   t.Date.Format("2006-01-02"),
			Label:  t.Category(),
			Amount: t.Amount,
			Kind:   string(t.Kind),
		})
	}
	return out
}

func marshalSection(name string, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("buildPrompt: marshal %s: %w", name, err)
	}
	return name + ":\n" + string(data) + "\n\n", nil
}

const outputRules = "Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Do NOT use ```json or any Markdown.\n" +
	"Output must begin with \"{\" and end with \"}\".\n"

// buildFullAnalysisPrompt serializes the whole summary plus recent and
// largest transactions, and spells out the exact object the model must
// return.
func buildFullAnalysisPrompt(s *summary.Summary, expenses, incomes []domain.Transaction) (string, error) {
	var b strings.Builder

	b.WriteString("You are a personal finance advisor analyzing a user's transaction history.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Assess the user's overall financial health from the data below.\n")
	b.WriteString("- Be specific: reference real categories and amounts from the data.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n\n")

	recent := summary.RecentTransactions(mergeTransactions(expenses, incomes), s.AsOf, recentTransactionLimit)
	largest := summary.LargestTransactions(expenses, s.AsOf, largestTransactionLimit)

	sections := []struct {
		name string
		v    interface{}
	}{
		{"FINANCIAL SUMMARY", s},
		{"RECENT TRANSACTIONS (last month, newest first)", projectTransactions(recent)},
		{"LARGEST EXPENSES (last 3 months)", projectTransactions(largest)},
	}
	for _, sec := range sections {
		part, err := marshalSection(sec.name, sec.v)
		if err != nil {
			return "", err
		}
		b.WriteString(part)
	}

	b.WriteString("The response object must have these fields:\n")
	b.WriteString("- \"healthScore\": number, 0-100\n")
	b.WriteString("- \"summary\": string, 2-3 sentence overall assessment\n")
	b.WriteString("- \"savingsRate\": number, percent of income kept\n")
	b.WriteString("- \"trend\": string, one of \"increasing\", \"decreasing\", \"stable\"\n")
	b.WriteString("- \"warningFlags\": array of {\"category\": string, \"message\": string, \"severity\": \"high\"|\"medium\"|\"low\"}\n")
	b.WriteString("- \"recommendations\": array of strings, 3-5 concrete actions\n")
	b.WriteString("- \"budgetSuggestion\": {\"monthlyTarget\": number, \"rationale\": string}\n\n")
	b.WriteString(outputRules)

	return b.String(), nil
}

// buildPredictionPrompt carries last-month transactions, the category
// breakdown, the series and summary figures. No source breakdown.
func buildPredictionPrompt(s *summary.Summary, expenses []domain.Transaction) (string, error) {
	var b strings.Builder

	b.WriteString("You are a personal finance advisor predicting next month's expenses.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Predict the user's total spending for next month from the data below.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n\n")

	lastMonth := summary.RecentTransactions(expenses, s.AsOf, recentTransactionLimit)

	sections := []struct {
		name string
		v    interface{}
	}{
		{"TOTALS AND AVERAGES", map[string]interface{}{
			"totals":          s.Totals,
			"monthlyAverages": s.MonthlyAverages,
			"volatility":      s.Volatility,
			"trend":           s.Trend,
		}},
		{"CATEGORY BREAKDOWN (last 6 months)", s.CategoryBreakdown},
		{"MONTHLY SERIES (oldest first)", s.MonthlySeries},
		{"LAST MONTH TRANSACTIONS", projectTransactions(lastMonth)},
	}
	for _, sec := range sections {
		part, err := marshalSection(sec.name, sec.v)
		if err != nil {
			return "", err
		}
		b.WriteString(part)
	}

	b.WriteString("The response object must have these fields:\n")
	b.WriteString("- \"predictedTotal\": number\n")
	b.WriteString("- \"confidence\": string, one of \"high\", \"medium\", \"low\"\n")
	b.WriteString("- \"reasoning\": string\n")
	b.WriteString("- \"categoryBreakdown\": array of {\"category\": string, \"predictedAmount\": number}\n\n")
	b.WriteString(outputRules)

	return b.String(), nil
}

// buildPatternsPrompt carries the category breakdown, summary figures, series
// and last-month transactions. No source breakdown, no largest-expense list.
func buildPatternsPrompt(s *summary.Summary, expenses []domain.Transaction) (string, error) {
	var b strings.Builder

	b.WriteString("You are a personal finance advisor reviewing spending patterns.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Identify which spending categories are healthy and which need attention.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n\n")

	lastMonth := summary.RecentTransactions(expenses, s.AsOf, recentTransactionLimit)

	sections := []struct {
		name string
		v    interface{}
	}{
		{"CATEGORY BREAKDOWN (last 6 months)", s.CategoryBreakdown},
		{"TOTALS AND AVERAGES", map[string]interface{}{
			"totals":          s.Totals,
			"monthlyAverages": s.MonthlyAverages,
			"volatility":      s.Volatility,
			"trend":           s.Trend,
		}},
		{"MONTHLY SERIES (oldest first)", s.MonthlySeries},
		{"LAST MONTH TRANSACTIONS", projectTransactions(lastMonth)},
	}
	for _, sec := range sections {
		part, err := marshalSection(sec.name, sec.v)
		if err != nil {
			return "", err
		}
		b.WriteString(part)
	}

	b.WriteString("The response object must have these fields:\n")
	b.WriteString("- \"criticalCategories\": array of {\"category\": string, \"issue\": string, \"priority\": \"high\"|\"medium\"|\"low\"}\n")
	b.WriteString("- \"healthyCategories\": array of strings\n")
	b.WriteString("- \"overallAssessment\": string\n")
	b.WriteString("- \"actionPlan\": array of strings, ordered by priority\n\n")
	b.WriteString(outputRules)

	return b.String(), nil
}

func mergeTransactions(a, b []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
