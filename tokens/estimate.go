// Package tokens approximates the token cost of translation requests and
// responses without a real tokenizer. The estimates are deliberately
// conservative: sizing a batch too small wastes a few API calls, sizing it
// too large truncates the model output mid-JSON and loses the whole batch.
package tokens

import (
	"math"
	"strings"
	"unicode"
)

// Characters-per-token divisors for the three text classes. Cyrillic text
// tokenizes much denser than Latin; placeholder-heavy strings (#VALUE#,
// %s, {count}, <b>) fragment into many small tokens.
const (
	charsPerTokenCyrillic    = 3
	charsPerTokenPlaceholder = 5
	charsPerTokenDefault     = 4
)

// itemOverheadFactor inflates a per-item estimate to account for the JSON
// structure around it (quotes, braces, key repetition) in the prompt.
const itemOverheadFactor = 1.8

// ResponseMultiplier is the default growth allowance for translated text
// relative to its source. Target languages routinely run 20% longer.
const ResponseMultiplier = 1.2

// responseItemLangOverhead is the fixed per-item-per-language token cost of
// the response envelope (key string, language code, punctuation).
const responseItemLangOverhead = 8

// placeholderChars are the punctuation marks that indicate structural
// placeholders in a localization string.
const placeholderChars = "#%{}<>"

// EstimateText estimates the token count of a single text.
func EstimateText(text string) int {
	if text == "" {
		return 0
	}

	divisor := charsPerTokenDefault
	if isMostlyCyrillic(text) {
		divisor = charsPerTokenCyrillic
	} else if strings.ContainsAny(text, placeholderChars) {
		divisor = charsPerTokenPlaceholder
	}

	n := len([]rune(text))
	return (n + divisor - 1) / divisor
}

// isMostlyCyrillic reports whether more than half of the code points in
// text belong to the Cyrillic script.
func isMostlyCyrillic(text string) bool {
	total, cyr := 0, 0
	for _, r := range text {
		total++
		if unicode.Is(unicode.Cyrillic, r) {
			cyr++
		}
	}
	return total > 0 && cyr*2 > total
}

// EstimateItem estimates the prompt-side token cost of one item: its key,
// file name, and every context value, inflated for JSON overhead.
func EstimateItem(key, file string, context []string) int {
	sum := EstimateText(key) + EstimateText(file)
	for _, v := range context {
		sum += EstimateText(v)
	}
	return int(math.Ceil(float64(sum) * itemOverheadFactor))
}

// ResponseItem is the per-item input to EstimateResponse: the existing
// context values and the number of target languages the oracle must fill.
type ResponseItem struct {
	Context []string
	Targets int
}

// EstimateResponse estimates the response-side token cost for a set of
// items. Each item is expected to produce one translation per target
// language, sized like its context values times mult, plus a fixed
// envelope overhead per item per language.
func EstimateResponse(items []ResponseItem, mult float64) int {
	if mult <= 0 {
		mult = ResponseMultiplier
	}
	total := 0.0
	for _, it := range items {
		ctx := 0
		for _, v := range it.Context {
			ctx += EstimateText(v)
		}
		total += float64(ctx*it.Targets)*mult + float64(it.Targets*responseItemLangOverhead)
	}
	return int(math.Ceil(total))
}
