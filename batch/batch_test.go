package batch

import (
	"strings"
	"testing"
)

func item(key string, ctxText string, targets ...string) Item {
	return Item{
		Key:     key,
		File:    "crm/install/lang.php",
		Context: map[string]string{"en": ctxText},
		Targets: targets,
	}
}

func TestBuild_Empty(t *testing.T) {
	if got := Build(nil, DefaultLimits); got != nil {
		t.Errorf("Build(nil) = %v, want nil", got)
	}
}

func TestBuild_SinglePassOrderPreserved(t *testing.T) {
	items := []Item{
		item("A", "one", "ru"),
		item("B", "two", "ru"),
		item("C", "three", "ru"),
	}
	batches := Build(items, DefaultLimits)

	var flat []string
	for _, b := range batches {
		for _, it := range b {
			flat = append(flat, it.Key)
		}
	}
	if strings.Join(flat, "") != "ABC" {
		t.Errorf("item order not preserved: %v", flat)
	}
}

func TestBuild_ItemCountCeiling(t *testing.T) {
	lim := Limits{MaxPromptTokens: 1 << 20, MaxResponseTokens: 1 << 20, MaxItems: 2}
	items := []Item{
		item("A", "x", "ru"),
		item("B", "x", "ru"),
		item("C", "x", "ru"),
		item("D", "x", "ru"),
		item("E", "x", "ru"),
	}
	batches := Build(items, lim)
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	for i, b := range batches {
		if len(b) > 2 {
			t.Errorf("batch %d has %d items, ceiling is 2", i, len(b))
		}
	}
}

func TestBuild_ResponseBudgetHonored(t *testing.T) {
	long := strings.Repeat("word ", 40)
	items := []Item{
		item("A", long, "ru", "de", "fr"),
		item("B", long, "ru", "de", "fr"),
		item("C", long, "ru", "de", "fr"),
		item("D", long, "ru", "de", "fr"),
	}
	lim := Limits{MaxPromptTokens: 1 << 20, MaxResponseTokens: 250, MaxItems: 100}

	batches := Build(items, lim)
	for i, b := range batches {
		est := ResponseEstimateFor(b)
		if est > lim.MaxResponseTokens && len(b) > 1 {
			t.Errorf("batch %d: response estimate %d exceeds budget %d with %d items",
				i, est, lim.MaxResponseTokens, len(b))
		}
	}
}

func TestBuild_PromptBudgetHonored(t *testing.T) {
	long := strings.Repeat("alpha beta ", 30)
	var items []Item
	for _, k := range []string{"A", "B", "C", "D", "E", "F"} {
		items = append(items, item(k, long, "ru"))
	}
	lim := Limits{MaxPromptTokens: 900, MaxResponseTokens: 1 << 20, MaxItems: 100}

	batches := Build(items, lim)
	if len(batches) < 2 {
		t.Fatalf("expected the prompt budget to split the input, got %d batch(es)", len(batches))
	}
	for i, b := range batches {
		total := promptOverhead
		for _, it := range b {
			total += it.PromptEstimate()
		}
		if total > lim.MaxPromptTokens && len(b) > 1 {
			t.Errorf("batch %d: prompt total %d exceeds budget %d", i, total, lim.MaxPromptTokens)
		}
	}
}

func TestBuild_OversizedSingletonMakesProgress(t *testing.T) {
	huge := strings.Repeat("very long source text ", 200)
	items := []Item{
		item("HUGE", huge, "ru", "de", "fr", "es"),
		item("SMALL", "ok", "ru"),
	}
	lim := Limits{MaxPromptTokens: 100, MaxResponseTokens: 100, MaxItems: 10}

	batches := Build(items, lim)
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2 (oversized singleton + rest)", len(batches))
	}
	if len(batches[0]) != 1 || batches[0][0].Key != "HUGE" {
		t.Errorf("first batch should be the oversized singleton, got %v", batches[0])
	}
	if len(batches[1]) != 1 || batches[1][0].Key != "SMALL" {
		t.Errorf("second batch should hold the small item, got %v", batches[1])
	}
}

func TestBuild_AllFitOneBatch(t *testing.T) {
	items := []Item{
		item("A", "yes", "ru"),
		item("B", "no", "ru"),
	}
	batches := Build(items, DefaultLimits)
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Errorf("expected one batch of two, got %v", batches)
	}
}

func TestContextValues_Deterministic(t *testing.T) {
	it := Item{
		Key:     "K",
		Context: map[string]string{"ru": "б", "de": "b", "en": "a"},
	}
	want := []string{"b", "a", "б"} // de, en, ru
	got := it.ContextValues()
	if len(got) != 3 {
		t.Fatalf("got %d values", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ContextValues[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
