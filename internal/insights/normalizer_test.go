package insights

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseObject(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]interface{}
	}{
		{
			name: "bare json",
			raw:  `{"score":87}`,
			want: map[string]interface{}{"score": float64(87)},
		},
		{
			name: "json fence with language tag",
			raw:  "```json\n{\"score\":87}\n```",
			want: map[string]interface{}{"score": float64(87)},
		},
		{
			name: "plain fence",
			raw:  "```\n{\"score\":87}\n```",
			want: map[string]interface{}{"score": float64(87)},
		},
		{
			name: "prose before fenced payload",
			raw:  "Sure! ```json\n{\"score\":87}\n```",
			want: map[string]interface{}{"score": float64(87)},
		},
		{
			name: "prose around bare payload",
			raw:  "Here is the analysis: {\"score\":87} hope it helps",
			want: map[string]interface{}{"score": float64(87)},
		},
		{
			name: "surrounding whitespace",
			raw:  "  \n\t{\"score\":87}\n  ",
			want: map[string]interface{}{"score": float64(87)},
		},
		{
			name: "nested braces survive the greedy span",
			raw:  "{\"outer\":{\"inner\":1}}",
			want: map[string]interface{}{"outer": map[string]interface{}{"inner": float64(1)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseObject(tt.raw)
			if err != nil {
				t.Fatalf("ParseObject(%q) error: %v", tt.raw, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseObject(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseObject_FencedAndBareAgree(t *testing.T) {
	bare, err := ParseObject(`{"a":1,"b":[1,2]}`)
	if err != nil {
		t.Fatal(err)
	}
	fenced, err := ParseObject("```json\n{\"a\":1,\"b\":[1,2]}\n```")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(bare, fenced) {
		t.Errorf("fenced parse %v differs from bare parse %v", fenced, bare)
	}
}

func TestParseObject_Failure(t *testing.T) {
	tests := []string{
		"",
		"no json here at all",
		"{broken",
		"```json\nstill not json\n```",
	}

	for _, raw := range tests {
		_, err := ParseObject(raw)
		if err == nil {
			t.Errorf("ParseObject(%q) succeeded, want error", raw)
			continue
		}
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("ParseObject(%q) error type = %T, want *ParseError", raw, err)
			continue
		}
		if parseErr.Raw != raw {
			t.Errorf("ParseError.Raw = %q, want the original text %q", parseErr.Raw, raw)
		}
	}
}

func TestNormalizeFullAnalysis(t *testing.T) {
	obj := map[string]interface{}{
		"healthScore": "72",
		"savingsRate": true,
		"summary":     "ok",
		"budgetSuggestion": map[string]interface{}{
			"monthlyTarget": "1500.50",
			"rationale":     "based on averages",
		},
	}

	got := normalizeFullAnalysis(obj)

	if got["healthScore"] != float64(72) {
		t.Errorf("healthScore = %v, want 72", got["healthScore"])
	}
	if got["savingsRate"] != float64(0) {
		t.Errorf("savingsRate = %v, want 0 for a non-numeric value", got["savingsRate"])
	}
	budget := ObjectField(got, "budgetSuggestion")
	if budget["monthlyTarget"] != 1500.50 {
		t.Errorf("monthlyTarget = %v, want 1500.5", budget["monthlyTarget"])
	}

	// Missing optional sections stay absent rather than being defaulted in.
	if _, ok := got["warningFlags"]; ok {
		t.Error("warningFlags was invented for an object that omitted it")
	}
}

func TestFieldHelpers(t *testing.T) {
	m := map[string]interface{}{
		"n":     float64(3),
		"ns":    "4.5",
		"bad":   []interface{}{},
		"s":     "  text  ",
		"list":  []interface{}{"a", float64(1), "b"},
		"inner": map[string]interface{}{"k": "v"},
	}

	if got := NumberField(m, "n"); got != 3 {
		t.Errorf("NumberField(n) = %v", got)
	}
	if got := NumberField(m, "ns"); got != 4.5 {
		t.Errorf("NumberField(ns) = %v", got)
	}
	if got := NumberField(m, "bad"); got != 0 {
		t.Errorf("NumberField(bad) = %v, want 0", got)
	}
	if got := NumberField(m, "missing"); got != 0 {
		t.Errorf("NumberField(missing) = %v, want 0", got)
	}
	if got := StringField(m, "s"); got != "text" {
		t.Errorf("StringField(s) = %q", got)
	}
	if got := StringSliceField(m, "list"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("StringSliceField(list) = %v", got)
	}
	if got := StringSliceField(m, "missing"); got != nil {
		t.Errorf("StringSliceField(missing) = %v, want nil", got)
	}
	if got := ObjectField(m, "inner"); got["k"] != "v" {
		t.Errorf("ObjectField(inner) = %v", got)
	}
}
