package insights

import (
	"encoding/json"
	"strings"
)

// The model is instructed to return raw JSON, but in practice responses
// arrive wrapped in Markdown fences or with prose around the payload. The
// normalizer applies explicit fallback tiers: strip fences, then try the
// greedy first-'{' to last-'}' span, then the whole cleaned text, then fail.

// stripFences removes triple-backtick delimiters (optionally tagged, e.g.
// ```json) wherever they wrap the payload.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+len("```"):]
		// Drop the language tag on the fence line, if any.
		if nl := strings.Index(s, "\n"); nl != -1 {
			firstLine := strings.TrimSpace(s[:nl])
			if firstLine == "" || isFenceTag(firstLine) {
				s = s[nl+1:]
			}
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	return strings.TrimSpace(s)
}

func isFenceTag(line string) bool {
	for _, r := range line {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// ParseObject extracts the one JSON object expected inside a model response.
// On failure it returns a *ParseError carrying the raw text.
func ParseObject(raw string) (map[string]interface{}, error) {
	clean := stripFences(raw)

	// Greedy span from the first '{' to the last '}'.
	if start := strings.Index(clean, "{"); start != -1 {
		if end := strings.LastIndex(clean, "}"); end > start {
			span := clean[start : end+1]
			var obj map[string]interface{}
			if err := json.Unmarshal([]byte(span), &obj); err == nil {
				return obj, nil
			}
		}
	}

	// Fall back to parsing the whole cleaned text.
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(clean), &obj); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	return obj, nil
}

// normalizeFullAnalysis applies leaf-level defaults to a parsed full-analysis
// object. Numeric score fields are coerced in place; optional sections that
// the model omitted are left absent, consumers treat missing arrays as empty.
func normalizeFullAnalysis(obj map[string]interface{}) map[string]interface{} {
	if obj == nil {
		return nil
	}
	if _, ok := obj["healthScore"]; ok {
		obj["healthScore"] = NumberField(obj, "healthScore")
	}
	if _, ok := obj["savingsRate"]; ok {
		obj["savingsRate"] = NumberField(obj, "savingsRate")
	}
	if budget := ObjectField(obj, "budgetSuggestion"); budget != nil {
		if _, ok := budget["monthlyTarget"]; ok {
			budget["monthlyTarget"] = NumberField(budget, "monthlyTarget")
		}
	}
	return obj
}
