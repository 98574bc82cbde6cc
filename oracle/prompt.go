package oracle

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/minios-linux/fillkit/batch"
	"github.com/minios-linux/fillkit/langmeta"
)

// SystemPrompt instructs the model to act as a localization translator and
// to return nothing but the result object.
const SystemPrompt = `You are a professional translator specializing in software and product localization. You are translating UI strings for a business CRM/collaboration platform.

CONTEXT AWARENESS:
- Each entry is a localization key with its existing translations in one or more languages
- Use every provided language value as context to disambiguate short strings
- Tone: professional yet approachable, clear and concise
- Use established IT/business terminology in each target language

IMPORTANT TRANSLATION PRINCIPLES:
- Translate for NATURALNESS and FLUENCY in each target language, not word-for-word
- Preserve all format specifiers and placeholders exactly as-is (#NAME#, %s, {count}, <b>...</b>, etc.)
- Preserve leading/trailing whitespace, newlines, and punctuation patterns
- Keep brand names and proper nouns unchanged

TECHNICAL REQUIREMENTS:
- Return ONLY a JSON object mapping each key to an object of target-language translations:
  {"KEY_1": {"ru": "...", "de": "..."}, "KEY_2": {"tr": "..."}}
- Include every requested key and every requested language
- Do NOT include source languages in the output
- Do NOT add explanations, reasoning, or markdown code blocks`

// promptEntry is the per-item shape serialized into the user prompt.
type promptEntry struct {
	Key     string            `json:"key"`
	File    string            `json:"file"`
	Context map[string]string `json:"context"`
	Targets []string          `json:"translate_to"`
}

// BuildUserPrompt renders the batch as a numbered JSON task list with a
// legend naming each target language.
func BuildUserPrompt(items []batch.Item) string {
	var b strings.Builder
	b.WriteString("Target languages: ")
	b.WriteString(languageLegend(items))
	b.WriteString("\n\nTranslate these localization entries:\n\n")

	for i, it := range items {
		entry := promptEntry{
			Key:     it.Key,
			File:    it.File,
			Context: it.Context,
			Targets: it.Targets,
		}
		data, _ := json.Marshal(entry)
		fmt.Fprintf(&b, "%d. %s\n", i+1, data)
	}

	b.WriteString("\nReturn a single JSON object with exactly ")
	fmt.Fprintf(&b, "%d keys.", len(items))
	return b.String()
}

// languageLegend lists every target language of the batch as
// "code (native name)", sorted by code. Naming the languages reduces
// confusion between close codes like pt and pt-BR.
func languageLegend(items []batch.Item) string {
	seen := make(map[string]bool)
	var codes []string
	for _, it := range items {
		for _, lang := range it.Targets {
			if !seen[lang] {
				seen[lang] = true
				codes = append(codes, lang)
			}
		}
	}
	sort.Strings(codes)

	parts := make([]string, len(codes))
	for i, code := range codes {
		parts[i] = fmt.Sprintf("%s (%s)", code, langmeta.Resolve(code).Name)
	}
	return strings.Join(parts, ", ")
}

// ResponseSchema builds a JSON schema constraining the response to the
// requested keys and languages. Hosted endpoints that support structured
// output use it; the other transports rely on sanitation instead.
func ResponseSchema(items []batch.Item) json.RawMessage {
	type langProps struct {
		Type                 string                    `json:"type"`
		Properties           map[string]map[string]any `json:"properties"`
		Required             []string                  `json:"required"`
		AdditionalProperties bool                      `json:"additionalProperties"`
	}

	props := make(map[string]any, len(items))
	required := make([]string, 0, len(items))
	for _, it := range items {
		langs := make(map[string]map[string]any, len(it.Targets))
		reqLangs := append([]string(nil), it.Targets...)
		sort.Strings(reqLangs)
		for _, lang := range it.Targets {
			langs[lang] = map[string]any{"type": "string"}
		}
		props[it.Key] = langProps{
			Type:                 "object",
			Properties:           langs,
			Required:             reqLangs,
			AdditionalProperties: false,
		}
		required = append(required, it.Key)
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
	data, _ := json.Marshal(schema)
	return data
}
