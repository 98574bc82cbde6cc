// Package pipeline drives the batch-translation run: it scans the snapshot
// for missing language slots, reuses what the gap-fill engine can copy for
// free, batches the remainder under token budgets, calls the oracle with
// bounded retries, applies only still-valid results, and persists the
// snapshot at checkpoints so an interrupted run resumes where it left off.
//
// Everything happens in one cooperative stream: files, batches, and oracle
// calls proceed strictly one at a time, and interrupts only toggle a flag
// observed at the top of the batch loop.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/minios-linux/fillkit/batch"
	"github.com/minios-linux/fillkit/gapfill"
	"github.com/minios-linux/fillkit/oracle"
	"github.com/minios-linux/fillkit/snapshot"
)

// retryDelays is the per-attempt backoff schedule for failed oracle calls.
// Index 0 is the delay before the first attempt.
var retryDelays = []time.Duration{0, 5 * time.Second, 15 * time.Second}

// copyLangPreference orders the languages tried when copying a long value
// directly instead of translating it. The configured source language is
// always tried first.
var copyLangPreference = []string{"ru"}

// ---- options ----

// Options configures a pipeline run.
type Options struct {
	// SourceLang is the reference language for gap-filling and long-value
	// copies (default "en").
	SourceLang string
	// Languages restricts translation targets to this set. New codes are
	// backfilled into the snapshot first. Empty means every language the
	// snapshot already knows.
	Languages []string
	// Limits bound batch sizes (zero value → batch.DefaultLimits).
	Limits batch.Limits
	// SaveEvery persists the snapshot after every N processed files
	// (default 5).
	SaveEvery int
	// ReloadEvery asks a reload-capable oracle to reload its model every N
	// batches (0 = never).
	ReloadEvery int
	// LongValueLimit is the source-text rune count beyond which a value is
	// copied verbatim instead of translated (default 500).
	LongValueLimit int
	// Limit caps the number of translation items sent to the oracle
	// (0 = unlimited). Useful for spot-checking quality on a small sample.
	Limit int

	// OnLog emits log messages during the run.
	OnLog func(format string, args ...any)
	// OnWarn emits warnings during the run.
	OnWarn func(format string, args ...any)
	// OnError emits error messages during the run.
	OnError func(format string, args ...any)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) warn(format string, args ...any) {
	if o.OnWarn != nil {
		o.OnWarn(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) effectiveSourceLang() string {
	if o.SourceLang != "" {
		return o.SourceLang
	}
	return "en"
}

func (o *Options) effectiveLimits() batch.Limits {
	if o.Limits == (batch.Limits{}) {
		return batch.DefaultLimits
	}
	return o.Limits
}

func (o *Options) effectiveSaveEvery() int {
	if o.SaveEvery > 0 {
		return o.SaveEvery
	}
	return 5
}

func (o *Options) effectiveLongValueLimit() int {
	if o.LongValueLimit > 0 {
		return o.LongValueLimit
	}
	return 500
}

// ---- summary ----

// Summary reports what a run accomplished.
type Summary struct {
	FilesProcessed int
	FilesSkipped   int
	GapFilled      gapfill.Result
	LongCopied     int
	Batches        int
	FailedBatches  int
	Applied        int
	DroppedInvalid int
	DroppedUnknown int
	Interrupted    bool
}

// ---- runner ----

// Runner executes the pipeline over one snapshot.
type Runner struct {
	snap   snapshot.Snapshot
	saver  *snapshot.Saver
	client oracle.Client
	opts   Options

	// stopRequested is polled at the top of the batch loop; wired to an
	// InterruptGuard in production, to a plain closure in tests.
	stopRequested func() bool

	itemsSent   int
	batchesDone int
}

// New builds a Runner. saver must wrap the same snapshot.
func New(snap snapshot.Snapshot, saver *snapshot.Saver, client oracle.Client, opts Options) *Runner {
	return &Runner{
		snap:          snap,
		saver:         saver,
		client:        client,
		opts:          opts,
		stopRequested: func() bool { return false },
	}
}

// SetStopCheck installs the cooperative stop flag source.
func (r *Runner) SetStopCheck(fn func() bool) {
	if fn != nil {
		r.stopRequested = fn
	}
}

// Run executes the full pipeline and returns a summary. A snapshot save
// failure aborts the run; oracle failures are retried, counted, and never
// fatal.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	src := r.opts.effectiveSourceLang()

	langs := r.snap.Languages()
	for _, lang := range r.opts.Languages {
		if !containsLang(langs, lang) {
			langs = append(langs, lang)
		}
	}
	if n := r.snap.Backfill(langs); n > 0 {
		r.opts.log("backfilled %d missing language slots", n)
	}

	sum.GapFilled = gapfill.Run(r.snap, src)
	if total := sum.GapFilled.Total(); total > 0 {
		r.opts.log("gap-fill reused %d values without translation (%d donor copies, %d uniform, %d blank-normalized)",
			total, sum.GapFilled.Filled, sum.GapFilled.Uniform, sum.GapFilled.Normalized)
		if err := r.saver.Save(); err != nil {
			return sum, fmt.Errorf("saving snapshot after gap-fill: %w", err)
		}
	}

	sinceSave := 0
	for _, file := range r.snap.Files() {
		if r.stopRequested() {
			sum.Interrupted = true
			break
		}

		items := r.scanFile(file)
		if len(items) == 0 {
			sum.FilesSkipped++
			continue
		}

		longCopied, rest := r.copyLongValues(file, items)
		sum.LongCopied += longCopied
		if longCopied > 0 {
			if err := r.saver.Save(); err != nil {
				return sum, fmt.Errorf("saving snapshot after long-value copy: %w", err)
			}
		}

		stopped, err := r.translateFile(ctx, file, rest, &sum)
		if err != nil {
			return sum, err
		}
		sum.FilesProcessed++
		if stopped {
			sum.Interrupted = true
			break
		}

		sinceSave++
		if sinceSave >= r.opts.effectiveSaveEvery() {
			if err := r.saver.Save(); err != nil {
				return sum, fmt.Errorf("saving snapshot: %w", err)
			}
			sinceSave = 0
		}
	}

	if err := r.saver.Save(); err != nil {
		return sum, fmt.Errorf("saving snapshot: %w", err)
	}
	r.logSummary(sum)
	return sum, nil
}

// scanFile computes the translation items for one file: every key with at
// least one usable context value and at least one fillable slot. Keys with
// no usable context (including blank-normalized ones) cannot be translated
// and are left alone.
func (r *Runner) scanFile(file string) []batch.Item {
	var items []batch.Item
	for _, key := range r.snap.KeysOf(file) {
		vals := r.snap[file][key]
		missing := snapshot.MissingIn(vals)
		if len(r.opts.Languages) > 0 {
			missing = intersectLangs(missing, r.opts.Languages)
		}
		if len(missing) == 0 {
			continue
		}
		context := snapshot.ContextOf(vals)
		if len(context) == 0 {
			continue
		}
		items = append(items, batch.Item{
			Key:     key,
			File:    file,
			Context: context,
			Targets: missing,
		})
	}
	return items
}

// copyLongValues handles items whose source text exceeds the length
// ceiling: the best existing value is copied verbatim into every missing
// slot and the item never reaches the oracle. Returns the number of slots
// copied and the items that still need translation.
func (r *Runner) copyLongValues(file string, items []batch.Item) (int, []batch.Item) {
	limit := r.opts.effectiveLongValueLimit()
	copied := 0
	rest := items[:0]
	for _, it := range items {
		src, ok := r.longSource(it, limit)
		if !ok {
			rest = append(rest, it)
			continue
		}
		for _, lang := range it.Targets {
			r.snap.Set(file, it.Key, lang, src)
			copied++
		}
		r.opts.log("copied long value for %s (%d chars) into %d languages", it.Key, len([]rune(src)), len(it.Targets))
	}
	return copied, rest
}

// longSource returns the value to copy for an over-limit item: the source
// language if present, then the preference list, then any available
// language in sorted order. Not a long item → ok=false.
func (r *Runner) longSource(it batch.Item, limit int) (string, bool) {
	long := false
	for _, v := range it.Context {
		if len([]rune(v)) > limit {
			long = true
			break
		}
	}
	if !long {
		return "", false
	}
	prefs := append([]string{r.opts.effectiveSourceLang()}, copyLangPreference...)
	for _, lang := range prefs {
		if v, ok := it.Context[lang]; ok {
			return v, true
		}
	}
	for _, v := range it.ContextValues() {
		return v, true
	}
	return "", false
}

// translateFile batches and translates one file's items. Returns true when
// a stop was requested mid-file.
func (r *Runner) translateFile(ctx context.Context, file string, items []batch.Item, sum *Summary) (bool, error) {
	if len(items) == 0 {
		return false, nil
	}
	lim := r.opts.effectiveLimits()

	single, rest := r.splitOversized(items, lim)
	batches := batch.Build(rest, lim)
	r.opts.log("file %s: %d keys missing translations → %d batches", file, len(items), len(batches)+len(single))

	for _, it := range single {
		if r.stopRequested() {
			return true, nil
		}
		if r.reachedLimit(sum) {
			return true, nil
		}
		r.translateOversized(ctx, file, it, lim, sum)
		r.itemsSent++
		r.maybeReload(ctx)
	}

	for _, b := range batches {
		if r.stopRequested() {
			return true, nil
		}
		if r.reachedLimit(sum) {
			return true, nil
		}
		sum.Batches++
		res, err := r.callWithRetry(ctx, b, lim.MaxResponseTokens)
		if err != nil {
			sum.FailedBatches++
			r.opts.logError("batch of %d keys failed after %d attempts: %v", len(b), len(retryDelays), err)
		} else {
			r.applyResult(file, b, res, sum)
		}
		r.itemsSent += len(b)
		r.maybeReload(ctx)
	}
	return false, nil
}

// splitOversized separates items whose lone response estimate exceeds half
// the response ceiling and that target multiple languages; those are
// translated one language per exchange to stay under the ceiling.
func (r *Runner) splitOversized(items []batch.Item, lim batch.Limits) (single, rest []batch.Item) {
	for _, it := range items {
		if lim.MaxResponseTokens > 0 && len(it.Targets) > 1 && it.ResponseEstimate() > lim.MaxResponseTokens/2 {
			single = append(single, it)
		} else {
			rest = append(rest, it)
		}
	}
	return single, rest
}

// translateOversized issues one oracle exchange per target language.
// Per-language failures are logged and tolerated, never escalated.
func (r *Runner) translateOversized(ctx context.Context, file string, it batch.Item, lim batch.Limits, sum *Summary) {
	r.opts.log("key %s is oversized: translating %d languages separately", it.Key, len(it.Targets))
	for _, lang := range it.Targets {
		part := it
		part.Targets = []string{lang}
		sum.Batches++
		res, err := r.callWithRetry(ctx, []batch.Item{part}, lim.MaxResponseTokens)
		if err != nil {
			sum.FailedBatches++
			r.opts.logError("key %s language %s failed: %v", it.Key, lang, err)
			continue
		}
		r.applyResult(file, []batch.Item{part}, res, sum)
	}
}

// callWithRetry performs one oracle call with the fixed backoff schedule.
func (r *Runner) callWithRetry(ctx context.Context, items []batch.Item, maxTokens int) (oracle.Result, error) {
	var lastErr error
	for attempt, delay := range retryDelays {
		if delay > 0 {
			r.opts.warn("retrying batch in %s (attempt %d/%d)", delay, attempt+1, len(retryDelays))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		res, err := r.client.Translate(ctx, items, maxTokens)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// applyResult writes oracle output back into the snapshot. Only slots that
// are still fillable receive values; empty values and keys outside the
// current batch are dropped and counted, never retried.
func (r *Runner) applyResult(file string, items []batch.Item, res oracle.Result, sum *Summary) {
	expected := make(map[string]map[string]bool, len(items))
	for _, it := range items {
		langs := make(map[string]bool, len(it.Targets))
		for _, lang := range it.Targets {
			langs[lang] = true
		}
		expected[it.Key] = langs
	}

	for key, langs := range res {
		targets, known := expected[key]
		if !known {
			sum.DroppedUnknown++
			r.opts.warn("oracle returned unknown key %q, discarded", key)
			continue
		}
		for lang, text := range langs {
			if !targets[lang] {
				sum.DroppedUnknown++
				r.opts.warn("oracle returned unrequested language %s for %s, discarded", lang, key)
				continue
			}
			if !snapshot.Valid(&text) {
				sum.DroppedInvalid++
				r.opts.warn("oracle returned empty value for %s/%s, dropped", key, lang)
				continue
			}
			if !snapshot.Fillable(r.snap[file][key][lang]) {
				sum.DroppedInvalid++
				r.opts.warn("slot %s/%s was filled while the batch was in flight, dropped", key, lang)
				continue
			}
			r.snap.Set(file, key, lang, text)
			sum.Applied++
		}
	}
}

// reachedLimit reports whether the spot-check item cap is exhausted.
func (r *Runner) reachedLimit(sum *Summary) bool {
	if r.opts.Limit > 0 && r.itemsSent >= r.opts.Limit {
		r.opts.log("item limit %d reached, stopping", r.opts.Limit)
		sum.Interrupted = true
		return true
	}
	return false
}

// maybeReload asks a reload-capable oracle to reload its model every
// ReloadEvery batches. Reload errors are logged, not fatal.
func (r *Runner) maybeReload(ctx context.Context) {
	r.batchesDone++
	if r.opts.ReloadEvery <= 0 || r.batchesDone%r.opts.ReloadEvery != 0 {
		return
	}
	rl, ok := r.client.(oracle.Reloader)
	if !ok {
		return
	}
	r.opts.log("reloading model after %d batches", r.batchesDone)
	if err := rl.Reload(ctx); err != nil {
		r.opts.logError("model reload failed: %v", err)
	}
}

func containsLang(langs []string, lang string) bool {
	for _, l := range langs {
		if l == lang {
			return true
		}
	}
	return false
}

func intersectLangs(a, allowed []string) []string {
	var out []string
	for _, lang := range a {
		if containsLang(allowed, lang) {
			out = append(out, lang)
		}
	}
	return out
}

func (r *Runner) logSummary(sum Summary) {
	r.opts.log("run complete: %d files processed, %d skipped, %d values applied, %d reused, %d long copies, %d/%d batches failed",
		sum.FilesProcessed, sum.FilesSkipped, sum.Applied, sum.GapFilled.Total(), sum.LongCopied, sum.FailedBatches, sum.Batches)
	if sum.DroppedInvalid > 0 || sum.DroppedUnknown > 0 {
		r.opts.warn("dropped %d invalid and %d unknown oracle results", sum.DroppedInvalid, sum.DroppedUnknown)
	}
	if sum.Interrupted || sum.FailedBatches > 0 {
		r.opts.log("re-run the same command to resume: only still-missing values will be retried")
	}
}
