// Package translate turns collector-produced topic titles into the target
// market language. Translation is best-effort everywhere it is used: callers
// must treat any failure as "keep the originals".
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fhalamzie/topicminer/internal/llm"
)

// Translator converts a batch of short texts into the target language. The
// returned slice has the same length and order as the input.
type Translator interface {
	Translate(ctx context.Context, texts []string, targetLanguage string) ([]string, error)
}

// ensure LLMTranslator implements Translator
var _ Translator = (*LLMTranslator)(nil)

// LLMTranslator translates via the structured-generate capability.
type LLMTranslator struct {
	client llm.Client
	logger *slog.Logger
}

// NewLLMTranslator creates a translator backed by the given LLM client.
func NewLLMTranslator(client llm.Client, logger *slog.Logger) *LLMTranslator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMTranslator{client: client, logger: logger}
}

// Translate asks the model for a JSON array of translations. It returns an
// error when the response cannot be coerced into a same-length array; callers
// fall back to the originals.
func (t *LLMTranslator) Translate(ctx context.Context, texts []string, targetLanguage string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}

	prompt := fmt.Sprintf(
		"Translate each of the following short topic titles into %s. "+
			"Respond with a JSON array of strings, same length and order as the input, nothing else.\n%s",
		targetLanguage, payload,
	)

	resp, err := t.client.GenerateStructured(ctx, llm.Request{
		Prompt: prompt,
		ResponseSchema: map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}

	var translated []string
	if err := json.Unmarshal(resp.Content, &translated); err != nil {
		return nil, fmt.Errorf("translate: unexpected response shape: %w", err)
	}
	if len(translated) != len(texts) {
		return nil, fmt.Errorf("translate: got %d translations for %d inputs", len(translated), len(texts))
	}

	// The model occasionally returns empty strings for titles it cannot
	// handle; keep the original for those slots.
	for i, tr := range translated {
		if strings.TrimSpace(tr) == "" {
			translated[i] = texts[i]
		}
	}
	return translated, nil
}

// OrOriginals runs tr.Translate and falls back to the untranslated input on
// any failure, logging the reason. It never returns an error.
func OrOriginals(ctx context.Context, tr Translator, texts []string, targetLanguage string, logger *slog.Logger) []string {
	if tr == nil || len(texts) == 0 || isEnglish(targetLanguage) {
		return texts
	}
	if logger == nil {
		logger = slog.Default()
	}

	translated, err := tr.Translate(ctx, texts, targetLanguage)
	if err != nil {
		logger.Warn("translation failed, keeping originals", "language", targetLanguage, "count", len(texts), "error", err)
		return texts
	}
	return translated
}

func isEnglish(language string) bool {
	lang := strings.ToLower(strings.TrimSpace(language))
	return lang == "" || lang == "en" || strings.HasPrefix(lang, "en-") || lang == "english"
}
