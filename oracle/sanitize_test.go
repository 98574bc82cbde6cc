package oracle

import "testing"

func TestSanitize_StripsThinkBlock(t *testing.T) {
	in := "<think>The user wants Russian.\nLet me translate.</think>\n{\"K\": {\"ru\": \"Да\"}}"
	want := `{"K": {"ru": "Да"}}`
	if got := Sanitize(in); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitize_DanglingThinkClose(t *testing.T) {
	// Some backends emit only the closing tag when thinking is disabled.
	in := "reasoning leaked here</think>{\"K\": {\"ru\": \"Да\"}}"
	want := `{"K": {"ru": "Да"}}`
	if got := Sanitize(in); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitize_MarkdownFence(t *testing.T) {
	in := "```json\n{\"K\": {\"ru\": \"Да\"}}\n```"
	want := `{"K": {"ru": "Да"}}`
	if got := Sanitize(in); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitize_TruncatesTrailingProse(t *testing.T) {
	in := `{"K": {"ru": "Да"}} I hope this helps!`
	want := `{"K": {"ru": "Да"}}`
	if got := Sanitize(in); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitize_ChatTemplateTokens(t *testing.T) {
	in := "<|im_start|>{\"K\": {\"ru\": \"Да\"}}<|im_end|>"
	want := `{"K": {"ru": "Да"}}`
	if got := Sanitize(in); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseResult_Strict(t *testing.T) {
	res, err := ParseResult(`{"GREETING": {"ru": "Привет", "de": "Hallo"}}`)
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}
	if res["GREETING"]["ru"] != "Привет" || res["GREETING"]["de"] != "Hallo" {
		t.Errorf("unexpected result: %v", res)
	}
}

func TestParseResult_StrayMarkerBetweenElements(t *testing.T) {
	in := `{"K1": {"ru": "Раз"} <sep> "K2": {"ru": "Два"}}`
	res, err := ParseResult(in)
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}
	if res["K1"]["ru"] != "Раз" || res["K2"]["ru"] != "Два" {
		t.Errorf("unexpected result: %v", res)
	}
}

func TestParseResult_MissingCommaRepair(t *testing.T) {
	in := `{"K1": {"ru": "Раз"} "K2": {"ru": "Два"}}`
	res, err := ParseResult(in)
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}
	if len(res) != 2 {
		t.Errorf("got %d keys, want 2: %v", len(res), res)
	}
}

func TestParseResult_InvalidEscapeRepair(t *testing.T) {
	// \& is not a valid JSON escape; models produce it in markup-heavy text.
	in := `{"K": {"ru": "раз \& два"}}`
	res, err := ParseResult(in)
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}
	if res["K"]["ru"] != `раз \& два` {
		t.Errorf("got %q", res["K"]["ru"])
	}
}

func TestParseResult_EmptyAfterSanitation(t *testing.T) {
	if _, err := ParseResult("<think>only reasoning</think>"); err == nil {
		t.Error("expected an error for a response with no JSON")
	}
}

func TestParseResult_Garbage(t *testing.T) {
	if _, err := ParseResult("{{{{:::"); err == nil {
		t.Error("expected an error for unparseable content")
	}
}
