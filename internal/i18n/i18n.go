// Package i18n provides translations for user-facing messages
package i18n

import (
	"fmt"
	"sort"
)

const (
	// DefaultLanguage is the fallback language when no translation is available
	DefaultLanguage = "en"
	// BerneseGermanMessages is a Swiss Dialect spoken in the Canton of Bern
	BerneseGermanMessages = "ch_be"
)

// catalogs maps language codes to their message tables
var catalogs = map[string]map[string]string{
	DefaultLanguage:       englishMessages,
	BerneseGermanMessages: berneseGermanMessages,
}

// Localizer translates message keys for one language.
type Localizer struct {
	language string
	messages map[string]string
}

// NewLocalizer creates a localizer. Unknown languages fall back to English.
func NewLocalizer(language string) *Localizer {
	if !IsSupported(language) {
		language = DefaultLanguage
	}
	return &Localizer{
		language: language,
		messages: getMessages(language),
	}
}

// Language returns the effective language code.
func (l *Localizer) Language() string {
	return l.language
}

// T translates key, formatting args into the message when given. Keys missing
// from the language fall back to English, then to the key itself.
func (l *Localizer) T(key string, args ...any) string {
	message, ok := l.messages[key]
	if !ok {
		message, ok = englishMessages[key]
	}
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(message, args...)
	}
	return message
}

// IsSupported reports whether language has a catalog.
func IsSupported(language string) bool {
	_, ok := catalogs[language]
	return ok
}

// GetSupportedLanguages returns the supported language codes, default first.
func GetSupportedLanguages() []string {
	langs := make([]string, 0, len(catalogs))
	for lang := range catalogs {
		if lang != DefaultLanguage {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	return append([]string{DefaultLanguage}, langs...)
}

func getMessages(language string) map[string]string {
	if messages, ok := catalogs[language]; ok {
		return messages
	}
	return englishMessages
}
