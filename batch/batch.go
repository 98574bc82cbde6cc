// Package batch groups translation items into oracle-call-sized batches.
//
// A batch must satisfy three independent bounds at once: the prompt token
// budget, the response token budget, and a hard item-count ceiling. The
// token bounds come from the model's context and output windows; the item
// ceiling is a latency safety net independent of token math.
package batch

import (
	"sort"

	"github.com/minios-linux/fillkit/tokens"
)

// Item is one key that needs translation: its existing non-empty values
// (context for the oracle) and the languages still missing.
type Item struct {
	// Key is the translation key within the file.
	Key string
	// File is the snapshot file path the key belongs to.
	File string
	// Context maps language code to an existing non-empty value.
	Context map[string]string
	// Targets are the language codes that need a value, in stable order.
	Targets []string
}

// ContextValues returns the context texts in deterministic (sorted-lang)
// order. Order does not change any estimate, but keeps prompts stable
// between runs.
func (it Item) ContextValues() []string {
	langs := sortedKeys(it.Context)
	vals := make([]string, 0, len(langs))
	for _, l := range langs {
		vals = append(vals, it.Context[l])
	}
	return vals
}

// PromptEstimate returns the prompt-side token estimate for the item.
func (it Item) PromptEstimate() int {
	return tokens.EstimateItem(it.Key, it.File, it.ContextValues())
}

// responseItem converts the item for response estimation.
func (it Item) responseItem() tokens.ResponseItem {
	return tokens.ResponseItem{Context: it.ContextValues(), Targets: len(it.Targets)}
}

// ResponseEstimate returns the response-side token estimate for the item
// alone, used by the oversized-item check in the pipeline.
func (it Item) ResponseEstimate() int {
	return tokens.EstimateResponse([]tokens.ResponseItem{it.responseItem()}, tokens.ResponseMultiplier)
}

// Limits bounds a single oracle exchange.
type Limits struct {
	// MaxPromptTokens bounds promptOverhead + Σ item prompt estimates.
	MaxPromptTokens int
	// MaxResponseTokens bounds the estimated response size.
	MaxResponseTokens int
	// MaxItems is the hard per-batch item ceiling.
	MaxItems int
}

// promptOverhead is the fixed token cost of the system prompt and request
// framing, charged once per batch.
const promptOverhead = 600

// DefaultLimits are sized for a ~8k-context model with a 4k output window.
var DefaultLimits = Limits{
	MaxPromptTokens:   6000,
	MaxResponseTokens: 3000,
	MaxItems:          24,
}

// Build partitions items into batches in a single greedy pass. The order of
// items is preserved. Bound checks only reject additions to a non-empty
// batch: the first item of a batch is always accepted, so an oversized
// singleton still makes forward progress as its own batch.
func Build(items []Item, lim Limits) [][]Item {
	if len(items) == 0 {
		return nil
	}

	var batches [][]Item
	var cur []Item
	curPrompt := promptOverhead
	var curResp []tokens.ResponseItem

	for _, it := range items {
		p := it.PromptEstimate()
		nextResp := append(curResp, it.responseItem())

		if len(cur) > 0 && exceeds(lim, len(cur)+1, curPrompt+p, tokens.EstimateResponse(nextResp, tokens.ResponseMultiplier)) {
			batches = append(batches, cur)
			cur = nil
			curPrompt = promptOverhead
			curResp = nil
			nextResp = []tokens.ResponseItem{it.responseItem()}
		}

		cur = append(cur, it)
		curPrompt += p
		curResp = nextResp
	}

	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// exceeds reports whether any of the three bounds would be violated.
func exceeds(lim Limits, count, prompt, response int) bool {
	if lim.MaxItems > 0 && count > lim.MaxItems {
		return true
	}
	if lim.MaxPromptTokens > 0 && prompt > lim.MaxPromptTokens {
		return true
	}
	if lim.MaxResponseTokens > 0 && response > lim.MaxResponseTokens {
		return true
	}
	return false
}

// ResponseEstimateFor returns the response estimate for a whole batch.
func ResponseEstimateFor(items []Item) int {
	resp := make([]tokens.ResponseItem, len(items))
	for i, it := range items {
		resp[i] = it.responseItem()
	}
	return tokens.EstimateResponse(resp, tokens.ResponseMultiplier)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
