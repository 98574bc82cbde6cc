// Package config — .fillkit.yaml configuration file support.
//
// When a .fillkit.yaml file exists in the working directory, fillkit uses
// it as the source of defaults for the snapshot path, language set, oracle
// endpoint, and batching budgets. Command-line flags override file values;
// the API key additionally falls back to the environment and a .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .fillkit.yaml structure.
type File struct {
	// Snapshot is the path to the translation snapshot (default
	// "translations.json").
	Snapshot string `yaml:"snapshot,omitempty"`
	// SourceLang is the reference language code (default "en").
	SourceLang string `yaml:"source_lang,omitempty"`
	// Languages restricts the target language set. Empty means every
	// language present in the snapshot.
	Languages []string `yaml:"languages,omitempty"`

	// Oracle selects and parameterizes the translation backend.
	Oracle Oracle `yaml:"oracle"`
	// Batch bounds oracle request/response sizes.
	Batch Batch `yaml:"batch,omitempty"`

	// SaveEvery persists the snapshot after every N processed files
	// (default 5).
	SaveEvery int `yaml:"save_every,omitempty"`
	// ReloadEvery reloads the local model every N batches (0 = never).
	ReloadEvery int `yaml:"reload_every,omitempty"`
	// LongValueLimit is the character ceiling above which values are
	// copied instead of translated (default 500).
	LongValueLimit int `yaml:"long_value_limit,omitempty"`
}

// Oracle is the backend section of .fillkit.yaml.
type Oracle struct {
	// Transport: "openai", "local", "mlx".
	Transport string `yaml:"transport"`
	// BaseURL is the endpoint base for local transports.
	BaseURL string `yaml:"base_url,omitempty"`
	// Model is the model identifier sent to chat endpoints.
	Model string `yaml:"model,omitempty"`
	// Temperature for generation (default 0.3).
	Temperature float32 `yaml:"temperature,omitempty"`
	// TimeoutSeconds is the per-request timeout (default 120).
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
	// SettleDelaySeconds is the pause after a model reload (default 8).
	SettleDelaySeconds int `yaml:"settle_delay_seconds,omitempty"`
}

// Batch is the budget section of .fillkit.yaml. Zero fields fall back to
// the built-in defaults.
type Batch struct {
	MaxPromptTokens   int `yaml:"max_prompt_tokens,omitempty"`
	MaxResponseTokens int `yaml:"max_response_tokens,omitempty"`
	MaxItems          int `yaml:"max_items,omitempty"`
}

// FileName is the default config file name.
const FileName = ".fillkit.yaml"

// APIKeyEnv is the environment variable consulted for the oracle API key.
const APIKeyEnv = "FILLKIT_API_KEY"

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads and validates .fillkit.yaml from the given directory. Returns
// an empty File (with defaults applied) if no config file exists.
func Load(rootDir string) (*File, error) {
	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			f := &File{}
			f.applyDefaults()
			return f, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	f.applyDefaults()

	if err := f.validate(path); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) applyDefaults() {
	if f.Snapshot == "" {
		f.Snapshot = "translations.json"
	}
	if f.SourceLang == "" {
		f.SourceLang = "en"
	}
	if f.Oracle.Transport == "" {
		f.Oracle.Transport = "mlx"
	}
	if f.Oracle.Temperature == 0 {
		f.Oracle.Temperature = 0.3
	}
	if f.Oracle.TimeoutSeconds == 0 {
		f.Oracle.TimeoutSeconds = 120
	}
	if f.Oracle.SettleDelaySeconds == 0 {
		f.Oracle.SettleDelaySeconds = 8
	}
	if f.SaveEvery == 0 {
		f.SaveEvery = 5
	}
	if f.LongValueLimit == 0 {
		f.LongValueLimit = 500
	}
}

func (f *File) validate(path string) error {
	switch f.Oracle.Transport {
	case "openai", "local", "mlx":
	default:
		return fmt.Errorf("%s: unknown oracle transport %q (valid: openai, local, mlx)", path, f.Oracle.Transport)
	}
	if f.Oracle.Transport != "openai" && f.Oracle.BaseURL == "" {
		return fmt.Errorf("%s: oracle transport %q requires base_url", path, f.Oracle.Transport)
	}
	if f.Batch.MaxPromptTokens < 0 || f.Batch.MaxResponseTokens < 0 || f.Batch.MaxItems < 0 {
		return fmt.Errorf("%s: batch budgets must be non-negative", path)
	}
	return nil
}

// Timeout returns the oracle request timeout as a duration.
func (o Oracle) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// SettleDelay returns the post-reload settle delay as a duration.
func (o Oracle) SettleDelay() time.Duration {
	return time.Duration(o.SettleDelaySeconds) * time.Second
}

// ---------------------------------------------------------------------------
// API key resolution
// ---------------------------------------------------------------------------

// ResolveAPIKey returns the oracle API key: an explicit flag value wins,
// then the FILLKIT_API_KEY environment variable, then a .env file in the
// given directory. An empty result is fine for local transports.
func ResolveAPIKey(flagValue, rootDir string) string {
	if flagValue != "" {
		return flagValue
	}
	if key := os.Getenv(APIKeyEnv); key != "" {
		return key
	}
	env, err := godotenv.Read(filepath.Join(rootDir, ".env"))
	if err != nil {
		return ""
	}
	return env[APIKeyEnv]
}
