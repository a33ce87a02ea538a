// Package i18n resolves message keys to display text for the languages the
// mobile client can request through the App-Language header.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"
)

const DefaultLanguage = "en"

//go:embed locales/*.json
var localeFS embed.FS

// Source is a database-backed translation table consulted before the
// embedded message files.
type Source interface {
	LookupTranslation(ctx context.Context, key, lang string) (string, bool, error)
}

type Translator struct {
	source   Source
	messages map[string]map[string]string
	logger   *zap.Logger
}

// NewTranslator loads the embedded message files. source may be nil.
func NewTranslator(source Source, logger *zap.Logger) (*Translator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("failed to read locales: %w", err)
	}

	messages := make(map[string]map[string]string, len(entries))
	for _, entry := range entries {
		data, err := localeFS.ReadFile(path.Join("locales", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read locale %s: %w", entry.Name(), err)
		}
		var table map[string]string
		if err := json.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("failed to parse locale %s: %w", entry.Name(), err)
		}
		messages[strings.TrimSuffix(entry.Name(), ".json")] = table
	}

	return &Translator{source: source, messages: messages, logger: logger}, nil
}

// Languages reports the languages with an embedded message file.
func (t *Translator) Languages() []string {
	out := make([]string, 0, len(t.messages))
	for lang := range t.messages {
		out = append(out, lang)
	}
	return out
}

// T returns the text for key in lang. Lookup order is the database table,
// the embedded file for lang, the embedded English file, then the key itself.
func (t *Translator) T(ctx context.Context, lang, key string) string {
	lang = t.Normalize(lang)

	if t.source != nil {
		text, ok, err := t.source.LookupTranslation(ctx, key, lang)
		if err != nil {
			t.logger.Warn("translation lookup failed", zap.String("key", key), zap.String("lang", lang), zap.Error(err))
		} else if ok && text != "" {
			return text
		}
	}

	if text, ok := t.messages[lang][key]; ok {
		return text
	}
	if text, ok := t.messages[DefaultLanguage][key]; ok {
		return text
	}
	return key
}

// Normalize maps an App-Language header value such as "es-ES" or "ES" to a
// supported language code, defaulting to English.
func (t *Translator) Normalize(header string) string {
	lang := strings.ToLower(strings.TrimSpace(header))
	if i := strings.IndexAny(lang, "-_,;"); i >= 0 {
		lang = lang[:i]
	}
	if _, ok := t.messages[lang]; ok {
		return lang
	}
	return DefaultLanguage
}
