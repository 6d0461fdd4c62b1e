// Package i18n holds the UI message catalog and language code mapping.
package i18n

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yml
var localesFS embed.FS

// Supported UI languages as alpha-2 codes, with their API alpha-3 codes.
var alpha3 = map[string]string{
	"en": "eng",
	"fi": "fin",
	"sv": "swe",
}

const DefaultLanguage = "en"

// supported lists the UI languages in matcher order; the first is the
// fallback.
var (
	supported = []language.Tag{language.English, language.Finnish, language.Swedish}
	matcher   = language.NewMatcher(supported)
)

// Translator renders a message key with {{param}} interpolation.
type Translator interface {
	T(key string, params map[string]string) string
}

// Catalog is an immutable set of messages for one language.
type Catalog struct {
	lang     string
	messages map[string]string
}

var (
	loadOnce sync.Once
	loaded   map[string]map[string]string
	loadErr  error
)

func loadAll() {
	loaded = map[string]map[string]string{}
	entries, err := localesFS.ReadDir("locales")
	if err != nil {
		loadErr = err
		return
	}
	for _, e := range entries {
		data, err := localesFS.ReadFile("locales/" + e.Name())
		if err != nil {
			loadErr = err
			return
		}
		msgs := map[string]string{}
		if err := yaml.Unmarshal(data, &msgs); err != nil {
			loadErr = fmt.Errorf("parse %s: %w", e.Name(), err)
			return
		}
		loaded[strings.TrimSuffix(e.Name(), ".yml")] = msgs
	}
}

// Load returns the catalog for lang. Unsupported or untranslated languages
// fall back to English.
func Load(lang string) (*Catalog, error) {
	loadOnce.Do(loadAll)
	if loadErr != nil {
		return nil, loadErr
	}
	lang = Alpha2(lang)
	msgs, ok := loaded[lang]
	if !ok {
		msgs = loaded[DefaultLanguage]
	}
	return &Catalog{lang: lang, messages: msgs}, nil
}

// MustLoad is Load for the embedded catalog, which is known to parse.
func MustLoad(lang string) *Catalog {
	c, err := Load(lang)
	if err != nil {
		panic(err)
	}
	return c
}

// Language is the alpha-2 code the catalog was requested for.
func (c *Catalog) Language() string { return c.lang }

// Alpha3 is the API language code of the catalog.
func (c *Catalog) Alpha3() string { return Alpha3(c.lang) }

// T returns the message for key. Unknown keys render as the key itself.
func (c *Catalog) T(key string, params map[string]string) string {
	msg, ok := c.messages[key]
	if !ok {
		if fallback, fok := loaded[DefaultLanguage][key]; fok {
			msg = fallback
		} else {
			msg = key
		}
	}
	return Interpolate(msg, params)
}

// Interpolate replaces {{name}} placeholders. Missing params render empty.
func Interpolate(msg string, params map[string]string) string {
	if !strings.Contains(msg, "{{") {
		return msg
	}
	var b strings.Builder
	for {
		start := strings.Index(msg, "{{")
		if start < 0 {
			b.WriteString(msg)
			break
		}
		end := strings.Index(msg[start:], "}}")
		if end < 0 {
			b.WriteString(msg)
			break
		}
		b.WriteString(msg[:start])
		name := strings.TrimSpace(msg[start+2 : start+end])
		b.WriteString(params[name])
		msg = msg[start+end+2:]
	}
	return b.String()
}

// Alpha2 normalizes a language tag to a supported alpha-2 code.
func Alpha2(lang string) string {
	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil {
		return DefaultLanguage
	}
	base, _ := tag.Base()
	if _, ok := alpha3[base.String()]; ok {
		return base.String()
	}
	return DefaultLanguage
}

// Alpha3 maps a language to the three-letter code used by the API.
func Alpha3(lang string) string {
	return alpha3[Alpha2(lang)]
}

// Match picks the supported alpha-2 language for an Accept-Language
// header, honouring q-weights. It returns "" when nothing matches.
func Match(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return ""
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return ""
	}
	base, _ := supported[idx].Base()
	return base.String()
}

// ISO3 maps any language tag to its ISO 639-3 code. Codes outside the UI
// languages keep their identity: "de" and "deu" both give "deu". Input that
// is not a language tag is returned lower-cased.
func ISO3(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	base, conf := tag.Base()
	if conf == language.No {
		return lang
	}
	return base.ISO3()
}

// Capitalize upper-cases the first letter only.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// CamelCase converts snake_case identifiers such as activation modes.
func CamelCase(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, p := range parts {
		p = strings.ToLower(p)
		if i > 0 {
			p = Capitalize(p)
		}
		parts[i] = p
	}
	return strings.Join(parts, "")
}
