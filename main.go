// fillkit — translation snapshot gap-filler with AI batch translation.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minios-linux/fillkit/batch"
	"github.com/minios-linux/fillkit/config"
	"github.com/minios-linux/fillkit/gapfill"
	"github.com/minios-linux/fillkit/i18n"
	"github.com/minios-linux/fillkit/langmeta"
	"github.com/minios-linux/fillkit/lockfile"
	"github.com/minios-linux/fillkit/oracle"
	"github.com/minios-linux/fillkit/pipeline"
	"github.com/minios-linux/fillkit/snapshot"
	"github.com/spf13/cobra"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flag
// ---------------------------------------------------------------------------

var rootDir string

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fillkit",
		Short: "Translation snapshot gap-filler with AI batch translation",
		Long: `fillkit — fills missing entries in a multi-language translation snapshot.

A snapshot is a JSON document mapping file → key → language → text. fillkit
first reuses existing translations across keys that share the same source
text, then batches the remaining gaps under token budgets and sends them to
an AI translation backend. The snapshot itself is the only state: an
interrupted run resumes by re-running the same command.

Commands:
  status      Show snapshot statistics per language
  fill        Reuse existing translations only (no AI calls)
  translate   Fill remaining gaps using an AI backend
  version     Show version information

Backends:
  openai   Hosted chat-completions endpoint (schema-constrained JSON)
  local    Locally hosted OpenAI-compatible endpoint (Ollama, llama.cpp)
  mlx      Purpose-built local server with /translate and /reload`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flag — inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")

	root.AddCommand(
		newStatusCmd(),
		newFillCmd(),
		newTranslateCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fillkit version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// status (read-only: snapshot statistics)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	var snapshotPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show snapshot statistics per language",
		Long: `Show fill statistics for the translation snapshot.

Displays file and key counts and per-language completion. Does not modify
any files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootDir)
			if err != nil {
				return err
			}
			if snapshotPath == "" {
				snapshotPath = filepath.Join(rootDir, cfg.Snapshot)
			}
			snap, err := snapshot.Load(snapshotPath)
			if err != nil {
				return err
			}
			runStatus(snap)
			return nil
		},
	}

	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Snapshot file (default from .fillkit.yaml)")

	return cmd
}

func runStatus(snap snapshot.Snapshot) {
	st := snap.CollectStats()
	logInfo(i18n.T("Snapshot: %d files, %d keys, %d missing values"), st.Files, st.Keys, st.Missing)

	if st.Slots == 0 {
		return
	}

	fmt.Fprintf(os.Stderr, "\n%sFill Statistics%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 52))
	fmt.Fprintf(os.Stderr, "%-8s %-10s %-10s %s\n", "Lang", "Filled", "Missing", "Progress")
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 52))

	perLangSlots := st.Slots / len(snap.Languages())
	for _, lang := range snap.Languages() {
		missing := st.PerLang[lang]
		filled := perLangSlots - missing
		percent := 0
		if perLangSlots > 0 {
			percent = filled * 100 / perLangSlots
		}
		fmt.Fprintf(os.Stderr, "%-8s %-10d %-10d %s  %s\n",
			lang, filled, missing, progressBar(percent, 20), langmeta.Resolve(lang).Name)
	}

	fmt.Fprintln(os.Stderr, strings.Repeat("─", 52))
	total := 0
	if st.Slots > 0 {
		total = st.Filled * 100 / st.Slots
	}
	fmt.Fprintf(os.Stderr, "Total: %d/%d slots filled (%d%%)\n\n", st.Filled, st.Slots, total)
}

// progressBar renders a colored bar of the given width for a percentage.
func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	color := colorRed
	switch {
	case percent >= 100:
		color = colorGreen
	case percent >= 34:
		color = colorYellow
	}

	filled := percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s%s%s %3d%%", color, bar, colorReset, percent)
}

// ---------------------------------------------------------------------------
// fill (reuse existing translations, no AI)
// ---------------------------------------------------------------------------

func newFillCmd() *cobra.Command {
	var snapshotPath string

	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Reuse existing translations only (no AI calls)",
		Long: `Fill missing values from existing translations.

Three passes: copy translations between keys that share identical source
text, propagate values that are uniform across every filled language, and
normalize keys whose every value is blank. Never calls an AI backend and
never overwrites non-empty values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootDir)
			if err != nil {
				return err
			}
			if snapshotPath == "" {
				snapshotPath = filepath.Join(rootDir, cfg.Snapshot)
			}
			return runFill(cfg, snapshotPath)
		},
	}

	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Snapshot file (default from .fillkit.yaml)")

	return cmd
}

func runFill(cfg *config.File, snapshotPath string) error {
	lock, err := lockfile.Acquire(rootDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	snap, err := snapshot.Load(snapshotPath)
	if err != nil {
		return err
	}
	snap.Backfill(snap.Languages())

	res := gapfill.Run(snap, cfg.SourceLang)
	if res.Total() == 0 {
		logInfo("No reusable translations found")
		return nil
	}

	saver := snapshot.NewSaver(snapshotPath, snap)
	if err := saver.Save(); err != nil {
		return err
	}
	logSuccess(i18n.N("Filled %d value", "Filled %d values", res.Total()), res.Total())
	logInfo("%d donor copies, %d uniform values, %d keys normalized as blank",
		res.Filled, res.Uniform, res.Normalized)
	return nil
}

// ---------------------------------------------------------------------------
// translate (fill gaps using an AI backend)
// ---------------------------------------------------------------------------

func newTranslateCmd() *cobra.Command {
	var (
		snapshotPath string

		// Backend selection
		transport string
		baseURL   string
		apiKey    string
		model     string

		// Target selection
		langs string

		// Run behavior
		limit   int
		dryRun  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Fill remaining gaps using an AI backend",
		Long: `Translate missing snapshot values using an AI backend.

Reusable translations are applied first, then the remaining gaps are
batched under token budgets and sent to the backend. Progress is saved
continuously: interrupt with Ctrl+C (twice) and re-run the same command
to resume.

Examples:
  # Translate using the local MLX server
  fillkit translate --transport mlx --base-url http://127.0.0.1:8765

  # Translate using a hosted OpenAI endpoint
  fillkit translate --transport openai --model gpt-4o --api-key sk-...

  # Translate two languages via Ollama
  fillkit translate --transport local --base-url http://localhost:11434 \
      --model qwen3-30b --lang ru,de

  # Spot-check quality on 20 keys
  fillkit translate --transport mlx --base-url http://127.0.0.1:8765 --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootDir)
			if err != nil {
				return err
			}

			// Flags override file values
			if transport != "" {
				cfg.Oracle.Transport = transport
			}
			if baseURL != "" {
				cfg.Oracle.BaseURL = baseURL
			}
			if model != "" {
				cfg.Oracle.Model = model
			}
			if langs != "" {
				cfg.Languages = parseLangs(langs)
			}
			if snapshotPath == "" {
				snapshotPath = filepath.Join(rootDir, cfg.Snapshot)
			}

			return runTranslate(cfg, snapshotPath, apiKey, limit, dryRun, verbose)
		},
	}

	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Snapshot file (default from .fillkit.yaml)")

	// Backend selection
	cmd.Flags().StringVar(&transport, "transport", "", "Backend transport: openai, local, mlx (default from .fillkit.yaml)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Backend base URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (or FILLKIT_API_KEY env var, or .env)")
	cmd.Flags().StringVar(&model, "model", "", "Model name")

	// Target selection
	cmd.Flags().StringVar(&langs, "lang", "", "Languages to fill (comma-separated, default: all missing)")

	// Run behavior
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after sending N keys (quality spot-check)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be translated, change nothing")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Log every batch")

	return cmd
}

func runTranslate(cfg *config.File, snapshotPath, apiKeyFlag string, limit int, dryRun, verbose bool) error {
	snap, err := snapshot.Load(snapshotPath)
	if err != nil {
		return err
	}

	st := snap.CollectStats()
	logInfo(i18n.T("Snapshot: %d files, %d keys, %d missing values"), st.Files, st.Keys, st.Missing)
	if st.Missing == 0 {
		logSuccess(i18n.T("Nothing to translate, snapshot is complete"))
		return nil
	}

	if dryRun {
		runDryRun(snap, cfg.Languages)
		return nil
	}

	lock, err := lockfile.Acquire(rootDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	client, err := oracle.New(oracle.Config{
		Transport:   cfg.Oracle.Transport,
		BaseURL:     cfg.Oracle.BaseURL,
		APIKey:      config.ResolveAPIKey(apiKeyFlag, rootDir),
		Model:       cfg.Oracle.Model,
		Temperature: cfg.Oracle.Temperature,
		Timeout:     cfg.Oracle.Timeout(),
		SettleDelay: cfg.Oracle.SettleDelay(),
		OnLog:       logInfo,
	})
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		SourceLang: cfg.SourceLang,
		Languages:  cfg.Languages,
		Limits: batch.Limits{
			MaxPromptTokens:   cfg.Batch.MaxPromptTokens,
			MaxResponseTokens: cfg.Batch.MaxResponseTokens,
			MaxItems:          cfg.Batch.MaxItems,
		},
		SaveEvery:      cfg.SaveEvery,
		ReloadEvery:    cfg.ReloadEvery,
		LongValueLimit: cfg.LongValueLimit,
		Limit:          limit,
		OnWarn:         logWarning,
		OnError:        logError,
	}
	if verbose {
		opts.OnLog = logInfo
	}

	guard := pipeline.NewInterruptGuard(logWarning)
	defer guard.Close()

	saver := snapshot.NewSaver(snapshotPath, snap)
	runner := pipeline.New(snap, saver, client, opts)
	runner.SetStopCheck(guard.Stopped)

	sum, err := runner.Run(context.Background())
	if err != nil {
		return err
	}

	applied := sum.Applied + sum.GapFilled.Total() + sum.LongCopied
	logSuccess(i18n.N("Filled %d value", "Filled %d values", applied), applied)
	if sum.FailedBatches > 0 {
		logWarning("%d of %d batches failed, their keys remain missing", sum.FailedBatches, sum.Batches)
	}
	if sum.Interrupted || sum.FailedBatches > 0 {
		logInfo(i18n.T("Translation interrupted, run the same command again to resume"))
	} else {
		logSuccess(i18n.T("Run complete"))
	}
	return nil
}

// runDryRun lists what a real run would send to the backend.
func runDryRun(snap snapshot.Snapshot, langs []string) {
	files, keys := 0, 0
	perLang := map[string]int{}
	for _, file := range snap.Files() {
		fileKeys := 0
		for _, key := range snap.KeysOf(file) {
			vals := snap[file][key]
			missing := snapshot.MissingIn(vals)
			if len(langs) > 0 {
				missing = intersectLanguages(missing, langs)
			}
			if len(missing) == 0 || len(snapshot.ContextOf(vals)) == 0 {
				continue
			}
			fileKeys++
			for _, lang := range missing {
				perLang[lang]++
			}
		}
		if fileKeys > 0 {
			files++
			keys += fileKeys
		}
	}

	logInfo("Would translate %d keys across %d files:", keys, files)
	codes := make([]string, 0, len(perLang))
	for lang := range perLang {
		codes = append(codes, lang)
	}
	sort.Strings(codes)
	for _, lang := range codes {
		fmt.Fprintf(os.Stderr, "  %s: %d values\n", lang, perLang[lang])
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// parseLangs splits a comma-separated language list, trimming whitespace.
func parseLangs(s string) []string {
	var langs []string
	for _, part := range strings.Split(s, ",") {
		if lang := strings.TrimSpace(part); lang != "" {
			langs = append(langs, lang)
		}
	}
	return langs
}

// intersectLanguages keeps the languages of available that are also in
// filter (filter entries are trimmed).
func intersectLanguages(available, filter []string) []string {
	want := make(map[string]bool, len(filter))
	for _, lang := range filter {
		want[strings.TrimSpace(lang)] = true
	}
	var out []string
	for _, lang := range available {
		if want[lang] {
			out = append(out, lang)
		}
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
