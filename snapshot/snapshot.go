// Package snapshot implements the localization snapshot: a nested mapping
// of file path → key → language code → value, where a value is a string or
// null. The snapshot is the system's sole persisted state — it is loaded
// whole, mutated in place, and rewritten whole. Resumability falls out of
// this design for free: a restart reloads the latest snapshot and rescans.
//
// File format:
//
//	{
//	    "crm/install/lang.php": {
//	        "CRM_DEAL_TITLE": { "en": "Deal", "ru": "Сделка", "de": null }
//	    }
//	}
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Values maps language code to a translation value; nil means absent.
type Values map[string]*string

// Keys maps translation key to its per-language values.
type Keys map[string]Values

// Snapshot maps file path to its keys.
type Snapshot map[string]Keys

// Load reads and parses a snapshot file. A snapshot that cannot be read or
// parsed is fatal to the caller: processing a partial view could lose data
// on the next whole-document save.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

// Valid reports whether a value holds real content: non-nil and non-empty
// after trimming whitespace.
func Valid(v *string) bool {
	return v != nil && strings.TrimSpace(*v) != ""
}

// Fillable reports whether a slot may be written by an automated pass:
// null, empty, or whitespace-only. Non-whitespace content is never
// overwritten.
func Fillable(v *string) bool {
	return !Valid(v)
}

// Files returns the file paths in sorted order. All iteration over the
// snapshot goes through sorted orders so that donor search, batching, and
// persistence are deterministic between runs.
func (s Snapshot) Files() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// KeysOf returns the keys of a file in sorted order.
func (s Snapshot) KeysOf(file string) []string {
	keys := make([]string, 0, len(s[file]))
	for k := range s[file] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Languages returns the sorted union of every language code seen anywhere
// in the snapshot.
func (s Snapshot) Languages() []string {
	seen := make(map[string]bool)
	for _, keys := range s {
		for _, vals := range keys {
			for lang := range vals {
				seen[lang] = true
			}
		}
	}
	langs := make([]string, 0, len(seen))
	for l := range seen {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Backfill ensures every key has a slot for every language in langs,
// inserting nil (absent) markers where missing. Returns the number of
// slots added.
func (s Snapshot) Backfill(langs []string) int {
	added := 0
	for _, keys := range s {
		for _, vals := range keys {
			for _, lang := range langs {
				if _, ok := vals[lang]; !ok {
					vals[lang] = nil
					added++
				}
			}
		}
	}
	return added
}

// Stats holds per-snapshot fill statistics.
type Stats struct {
	Files   int
	Keys    int
	Slots   int
	Filled  int
	Missing int
	// PerLang maps language code to its missing-slot count.
	PerLang map[string]int
}

// CollectStats walks the snapshot and counts filled and missing slots.
func (s Snapshot) CollectStats() Stats {
	st := Stats{Files: len(s), PerLang: make(map[string]int)}
	for _, keys := range s {
		st.Keys += len(keys)
		for _, vals := range keys {
			for lang, v := range vals {
				st.Slots++
				if Valid(v) {
					st.Filled++
				} else {
					st.Missing++
					st.PerLang[lang]++
				}
			}
		}
	}
	return st
}

// MissingIn returns, for one key's values, the languages whose slots are
// still fillable, in sorted order.
func MissingIn(vals Values) []string {
	var missing []string
	for lang, v := range vals {
		if Fillable(v) {
			missing = append(missing, lang)
		}
	}
	sort.Strings(missing)
	return missing
}

// ContextOf returns the existing valid values of a key as lang → trimmed
// text. The result is the oracle's translation context.
func ContextOf(vals Values) map[string]string {
	ctx := make(map[string]string)
	for lang, v := range vals {
		if Valid(v) {
			ctx[lang] = *v
		}
	}
	return ctx
}

// Set writes a value into a slot.
func (s Snapshot) Set(file, key, lang, text string) {
	if s[file] == nil || s[file][key] == nil {
		return
	}
	v := text
	s[file][key][lang] = &v
}

// write marshals the snapshot and writes it atomically: temp file in the
// same directory, fsync if the filesystem supports it, then rename over
// the target. A failed fsync is ignored — it only weakens durability, the
// content is still intact — but a failed write or rename is returned.
func (s Snapshot) write(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".fillkit-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
