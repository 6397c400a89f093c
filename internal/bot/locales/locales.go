// Package locales provides the fr/en message catalog for user-facing text.
//
// Each language lives in an embedded YAML file under catalog/. Lookup falls
// back to French when the language is unset or unknown, matching the bot's
// onboarding default.
package locales

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultLanguage is used while a session has no language yet.
const DefaultLanguage = "fr"

//go:embed catalog/*.yaml
var catalogFS embed.FS

var catalogs = mustLoad(catalogFS)

// mustLoad parses every catalog/*.yaml into a per-language key→text map.
// The catalogs are embedded, so a parse failure is a build defect and panics
// at startup rather than surfacing per-message.
func mustLoad(fsys fs.FS) map[string]map[string]string {
	entries, err := fs.ReadDir(fsys, "catalog")
	if err != nil {
		panic(fmt.Sprintf("locales: read catalog dir: %v", err))
	}

	out := make(map[string]map[string]string, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".yaml") {
			continue
		}
		raw, err := fs.ReadFile(fsys, path.Join("catalog", name))
		if err != nil {
			panic(fmt.Sprintf("locales: read %s: %v", name, err))
		}
		m := make(map[string]string)
		if err := yaml.Unmarshal(raw, &m); err != nil {
			panic(fmt.Sprintf("locales: parse %s: %v", name, err))
		}
		out[strings.TrimSuffix(name, ".yaml")] = m
	}

	if _, ok := out[DefaultLanguage]; !ok {
		panic("locales: default language catalog missing")
	}
	return out
}

// Languages returns the available language codes.
func Languages() []string {
	langs := make([]string, 0, len(catalogs))
	for lang := range catalogs {
		langs = append(langs, lang)
	}
	return langs
}

// Supported reports whether lang has a catalog.
func Supported(lang string) bool {
	_, ok := catalogs[lang]
	return ok
}

// T returns the message for key in lang. Unknown languages fall back to
// French; keys missing from a language fall back to the French text; a key
// missing everywhere returns the key itself so the defect is visible in chat
// rather than silently blank.
func T(lang, key string) string {
	m, ok := catalogs[lang]
	if !ok {
		m = catalogs[DefaultLanguage]
	}
	if text, ok := m[key]; ok {
		return text
	}
	if text, ok := catalogs[DefaultLanguage][key]; ok {
		return text
	}
	return key
}

// Tf is T followed by Sprintf for messages with a reason placeholder.
func Tf(lang, key string, args ...any) string {
	return fmt.Sprintf(T(lang, key), args...)
}
