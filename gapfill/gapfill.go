// Package gapfill fills missing translation slots without calling the
// oracle, by reusing existing translations across keys that share the same
// source text. Matching is exact string equality on the normalized source
// text — no fuzzy or semantic matching.
//
// Three ordered passes mutate the snapshot in place:
//
//  1. Fill: copy values from donor keys with identical source text.
//  2. UniformFill: keys whose existing values all agree get that value in
//     every remaining slot.
//  3. NormalizeBlank: keys with no content at all collapse to a canonical
//     single space, marking them intentionally blank.
//
// No pass ever overwrites a slot holding non-whitespace content, and a
// second run over an already-filled snapshot performs zero substitutions.
package gapfill

import (
	"sort"
	"strings"

	"github.com/minios-linux/fillkit/snapshot"
)

// Blank is the canonical value for intentionally empty keys. A single
// space distinguishes "processed, nothing to translate" from the null and
// empty-string markers that mean "still unprocessed".
const Blank = " "

// Donor records a key whose translations may be copied into other keys
// sharing the same source text.
type Donor struct {
	File string
	Key  string
	// Translations holds the donor's valid values verbatim, lang → text.
	Translations map[string]string
}

// Index maps normalized source text to the donors holding it, in encounter
// order (sorted file paths, then sorted keys within a file). First donor
// containing the needed language wins.
type Index struct {
	donors map[string][]Donor
	// primary is the designated source language for computing source text.
	primary string
}

// SourceText computes a key's source text: the trimmed value of the
// primary language if valid, else the first valid value in sorted language
// order. Returns "" when the key has no valid value.
func SourceText(vals snapshot.Values, primary string) string {
	if v, ok := vals[primary]; ok && snapshot.Valid(v) {
		return strings.TrimSpace(*v)
	}
	for _, lang := range sortedLangs(vals) {
		if v := vals[lang]; snapshot.Valid(v) {
			return strings.TrimSpace(*v)
		}
	}
	return ""
}

// BuildIndex scans the whole snapshot and records one donor per key under
// its source text. Keys with no valid value are skipped.
func BuildIndex(s snapshot.Snapshot, primary string) *Index {
	idx := &Index{donors: make(map[string][]Donor), primary: primary}

	for _, file := range s.Files() {
		for _, key := range s.KeysOf(file) {
			vals := s[file][key]
			src := SourceText(vals, primary)
			if src == "" {
				continue
			}
			idx.donors[src] = append(idx.donors[src], Donor{
				File:         file,
				Key:          key,
				Translations: snapshot.ContextOf(vals),
			})
		}
	}
	return idx
}

// Size returns the number of distinct source texts in the index.
func (idx *Index) Size() int { return len(idx.donors) }

// lookup returns the first donor for src that holds lang, excluding the
// recipient itself (a key never donates to its own slot).
func (idx *Index) lookup(src, lang, file, key string) (string, bool) {
	for _, d := range idx.donors[src] {
		if d.File == file && d.Key == key {
			continue
		}
		if text, ok := d.Translations[lang]; ok {
			return text, true
		}
	}
	return "", false
}

// Result counts the substitutions each pass performed.
type Result struct {
	Filled     int // pass 1: donor copies
	Uniform    int // pass 2: uniform-value copies
	Normalized int // pass 3: slots collapsed to Blank
}

// Total returns the sum of all substitutions.
func (r Result) Total() int { return r.Filled + r.Uniform + r.Normalized }

// Run executes the three passes in order and returns their counts.
func Run(s snapshot.Snapshot, primary string) Result {
	idx := BuildIndex(s, primary)
	var res Result
	res.Filled = Fill(s, idx)
	res.Uniform = UniformFill(s)
	res.Normalized = NormalizeBlank(s)
	return res
}

// Fill copies donor values into fillable slots of keys whose source text
// is present in the index. Returns the number of slots written.
func Fill(s snapshot.Snapshot, idx *Index) int {
	filled := 0
	for _, file := range s.Files() {
		for _, key := range s.KeysOf(file) {
			vals := s[file][key]
			src := SourceText(vals, idx.primary)
			if src == "" {
				continue
			}
			for _, lang := range sortedLangs(vals) {
				if !snapshot.Fillable(vals[lang]) {
					continue
				}
				if text, ok := idx.lookup(src, lang, file, key); ok {
					s.Set(file, key, lang, text)
					filled++
				}
			}
		}
	}
	return filled
}

// UniformFill handles keys whose existing values are all identical: with
// two or more agreeing values the text is evidently language-neutral (a
// brand name, a number format) and is copied into the remaining slots. A
// single existing value is not enough evidence and is never propagated.
func UniformFill(s snapshot.Snapshot) int {
	filled := 0
	for _, file := range s.Files() {
		for _, key := range s.KeysOf(file) {
			vals := s[file][key]

			uniform, count := "", 0
			mixed := false
			for _, lang := range sortedLangs(vals) {
				v := vals[lang]
				if !snapshot.Valid(v) {
					continue
				}
				if count == 0 {
					uniform = *v
				} else if *v != uniform {
					mixed = true
					break
				}
				count++
			}
			if mixed || count < 2 {
				continue
			}

			for _, lang := range sortedLangs(vals) {
				if snapshot.Fillable(vals[lang]) {
					s.Set(file, key, lang, uniform)
					filled++
				}
			}
		}
	}
	return filled
}

// NormalizeBlank collapses keys with no content at all — every slot null,
// empty, or whitespace — to the canonical Blank value in every language.
// Slots already holding Blank are left alone so the pass is idempotent.
func NormalizeBlank(s snapshot.Snapshot) int {
	normalized := 0
	for _, file := range s.Files() {
		for _, key := range s.KeysOf(file) {
			vals := s[file][key]
			if len(vals) == 0 {
				continue
			}

			allBlank := true
			for _, v := range vals {
				if snapshot.Valid(v) {
					allBlank = false
					break
				}
			}
			if !allBlank {
				continue
			}

			for _, lang := range sortedLangs(vals) {
				v := vals[lang]
				if v != nil && *v == Blank {
					continue
				}
				s.Set(file, key, lang, Blank)
				normalized++
			}
		}
	}
	return normalized
}

func sortedLangs(vals snapshot.Values) []string {
	langs := make([]string, 0, len(vals))
	for l := range vals {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}
