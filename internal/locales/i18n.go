package locales

import (
	"embed"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed *.json
var localeFS embed.FS

var (
	mu              sync.RWMutex
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
)

// Init initializes the i18n bundle by loading language files and setting the default language.
// It is safe to call more than once; the last call wins.
func Init(defaultLangCode string) error {
	tag, err := language.Parse(defaultLangCode)
	if err != nil {
		log.Printf("WARN: Failed to parse default language code '%s': %v. Falling back to English.", defaultLangCode, err)
		tag = language.English
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("failed to read embedded locales: %w", err)
	}

	loaded := 0
	for _, file := range entries {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		if _, err := b.LoadMessageFileFS(localeFS, file.Name()); err != nil {
			log.Printf("WARN: Failed to load message file '%s': %v", file.Name(), err)
			continue
		}
		loaded++
	}
	if loaded == 0 {
		return fmt.Errorf("no message files loaded from locales")
	}

	mu.Lock()
	bundle = b
	defaultLanguage = tag
	mu.Unlock()
	log.Printf("i18n bundle initialized with %d file(s). Default language: %s", loaded, tag.String())
	return nil
}

// MustInit is Init for tests and main; it panics on failure.
func MustInit(defaultLangCode string) {
	if err := Init(defaultLangCode); err != nil {
		log.Panicf("i18n init: %v", err)
	}
}

// GetDefaultLanguageTag returns the configured default language tag.
func GetDefaultLanguageTag() language.Tag {
	mu.RLock()
	defer mu.RUnlock()
	if bundle == nil {
		log.Panicln("Attempted to get default language tag before i18n bundle initialization.")
	}
	return defaultLanguage
}

// NewLocalizer creates a localizer for the given language preferences.
// With no preferences the default language is used.
func NewLocalizer(langPrefs ...string) *i18n.Localizer {
	mu.RLock()
	defer mu.RUnlock()
	if bundle == nil {
		log.Panicln("Attempted to create localizer before i18n bundle initialization.")
	}
	if len(langPrefs) == 0 {
		langPrefs = []string{defaultLanguage.String()}
	}
	return i18n.NewLocalizer(bundle, langPrefs...)
}

// GetMessage retrieves and formats a message by its ID using the provided localizer.
// templateData: optional map for template variables (e.g., map[string]interface{}{"Username": "bob"}).
// pluralCount: optional pointer to an int for pluralization rules.
func GetMessage(localizer *i18n.Localizer, msgID string, templateData map[string]interface{}, pluralCount *int) string {
	config := &i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: templateData,
	}
	if pluralCount != nil {
		config.PluralCount = *pluralCount
	}

	localizedMsg, err := localizer.Localize(config)
	if err == nil {
		return localizedMsg
	}
	log.Printf("ERROR: Failed to localize message ID '%s': %v. Falling back to English.", msgID, err)

	mu.RLock()
	b := bundle
	mu.RUnlock()
	fallbackMsg, fallbackErr := i18n.NewLocalizer(b, language.English.String()).Localize(config)
	if fallbackErr == nil {
		return fallbackMsg
	}
	log.Printf("ERROR: Failed to localize message ID '%s' in English fallback as well. Returning ID.", msgID)
	return msgID
}

// HasMessage reports whether msgID is defined for the localizer's language or English.
func HasMessage(localizer *i18n.Localizer, msgID string) bool {
	_, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: msgID, TemplateData: map[string]interface{}{}})
	return err == nil
}

// LocalizerFor returns a localizer for lang, falling back to the default language.
func LocalizerFor(lang string) *i18n.Localizer {
	if lang == "" {
		return NewLocalizer()
	}
	return NewLocalizer(lang, GetDefaultLanguageTag().String())
}
