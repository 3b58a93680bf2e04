// Package i18n loads the bot's localized message catalogs and renders text with x/text.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// Message keys shared by the bot and the sweeper.
const (
	KeySelectLanguage    = "select_language"
	KeyLanguageSet       = "language_set"
	KeyLinkMessage       = "link_message"
	KeyHelpMessage       = "help_message"
	KeyStatusActive      = "status_active"
	KeyStatusExpired     = "status_expired"
	KeyStatusNone        = "status_none"
	KeyExpiredMessage    = "expired_message"
	KeyTrialUsed         = "trial_used"
	KeyIssuanceFailed    = "issuance_failed"
	KeyUnsupportedLocale = "unsupported_locale"
	KeyInternalError     = "internal_error"
	KeyBroadcastButton   = "broadcast_button"
)

//go:embed locales/*.yaml
var embeddedLocales embed.FS

type localeFile struct {
	Locale     string            `yaml:"locale"`
	Name       string            `yaml:"name"`
	Selectable bool              `yaml:"selectable"`
	Messages   map[string]string `yaml:"messages"`
	Broadcasts []string          `yaml:"broadcasts"`
}

// Locale is one loaded catalog.
type Locale struct {
	Code       string
	Tag        language.Tag
	Name       string
	Selectable bool
	Broadcasts []string
	messages   map[string]string
}

// Bundle holds every supported locale and the x/text catalog built from them.
type Bundle struct {
	locales  map[string]*Locale
	codes    []string
	def      string
	catalog  *catalog.Builder
	printers map[string]*message.Printer
}

// Load returns the embedded catalogs with defaultLocale as fallback.
func Load(defaultLocale string) (*Bundle, error) {
	return LoadFromFS(embeddedLocales, defaultLocale)
}

// LoadFromFS loads locales/*.yaml from fsys. defaultLocale must be one of them.
func LoadFromFS(fsys fs.FS, defaultLocale string) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	b := &Bundle{locales: map[string]*Locale{}, printers: map[string]*message.Printer{}}
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		var file localeFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		loc, err := newLocale(path, file)
		if err != nil {
			return nil, err
		}
		if _, dup := b.locales[loc.Code]; dup {
			return nil, fmt.Errorf("catalog %s: locale %q already defined", path, loc.Code)
		}
		b.locales[loc.Code] = loc
		b.codes = append(b.codes, loc.Code)
	}

	b.def = strings.ToLower(strings.TrimSpace(defaultLocale))
	def, ok := b.locales[b.def]
	if !ok {
		return nil, fmt.Errorf("default locale %q is not defined in catalogs", defaultLocale)
	}
	if !def.Selectable {
		return nil, fmt.Errorf("default locale %q is not selectable", defaultLocale)
	}

	b.catalog = catalog.NewBuilder(catalog.Fallback(def.Tag))
	for _, code := range b.codes {
		loc := b.locales[code]
		for key, value := range loc.messages {
			if err := b.catalog.SetString(loc.Tag, key, value); err != nil {
				return nil, fmt.Errorf("register %s/%s: %w", code, key, err)
			}
		}
		// Keys missing from a locale resolve through the default locale.
		for key, value := range def.messages {
			if _, ok := loc.messages[key]; !ok {
				if err := b.catalog.SetString(loc.Tag, key, value); err != nil {
					return nil, fmt.Errorf("register %s/%s: %w", code, key, err)
				}
			}
		}
	}
	for _, code := range b.codes {
		b.printers[code] = message.NewPrinter(b.locales[code].Tag, message.Catalog(b.catalog))
	}
	return b, nil
}

func newLocale(path string, file localeFile) (*Locale, error) {
	code := strings.ToLower(strings.TrimSpace(file.Locale))
	if code == "" {
		return nil, fmt.Errorf("catalog %s: locale is required", path)
	}
	tag, err := language.Parse(code)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: parse locale tag %q: %w", path, code, err)
	}
	if len(file.Messages) == 0 {
		return nil, fmt.Errorf("catalog %s: messages map is required", path)
	}
	messages := make(map[string]string, len(file.Messages))
	for key, value := range file.Messages {
		k := strings.TrimSpace(key)
		if k == "" {
			return nil, fmt.Errorf("catalog %s: message key cannot be blank", path)
		}
		messages[k] = value
	}
	name := file.Name
	if name == "" {
		name = code
	}
	return &Locale{
		Code:       code,
		Tag:        tag,
		Name:       name,
		Selectable: file.Selectable,
		Broadcasts: file.Broadcasts,
		messages:   messages,
	}, nil
}

// Supported returns every loaded locale code, sorted.
func (b *Bundle) Supported() []string {
	out := make([]string, len(b.codes))
	copy(out, b.codes)
	return out
}

// IsSupported reports whether code names a loaded locale.
func (b *Bundle) IsSupported(code string) bool {
	_, ok := b.locales[code]
	return ok
}

// IsSelectable reports whether code is offered in the preference prompt.
// Only selectable locales can be stored as a principal's preference.
func (b *Bundle) IsSelectable(code string) bool {
	loc, ok := b.locales[code]
	return ok && loc.Selectable
}

// Selectable returns the locales offered in the preference prompt, default first.
func (b *Bundle) Selectable() []*Locale {
	var out []*Locale
	if def := b.locales[b.def]; def.Selectable {
		out = append(out, def)
	}
	for _, code := range b.codes {
		if loc := b.locales[code]; loc.Selectable && code != b.def {
			out = append(out, loc)
		}
	}
	return out
}

// Default returns the system default locale code.
func (b *Bundle) Default() string {
	return b.def
}

// Parse normalizes raw (e.g. "PT", "pt-BR", "en_US") to a supported locale code.
func (b *Bundle) Parse(raw string) (string, bool) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "_", "-"))
	if raw == "" {
		return "", false
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	code := base.String()
	if !b.IsSupported(code) {
		return "", false
	}
	return code, true
}

// Resolve returns code when supported, otherwise the default locale.
func (b *Bundle) Resolve(code string) string {
	if b.IsSupported(code) {
		return code
	}
	return b.def
}

// Printer returns the x/text printer for code, falling back to the default locale.
func (b *Bundle) Printer(code string) *message.Printer {
	return b.printers[b.Resolve(code)]
}

// Text renders key in the given locale with Printf-style args.
func (b *Bundle) Text(code, key string, args ...any) string {
	return b.Printer(code).Sprintf(key, args...)
}

// Broadcasts returns the promotional messages of a locale.
func (b *Bundle) Broadcasts(code string) []string {
	return b.locales[b.Resolve(code)].Broadcasts
}

// PreferencePrompt joins the select_language text of every selectable locale.
func (b *Bundle) PreferencePrompt() string {
	var parts []string
	for _, loc := range b.Selectable() {
		parts = append(parts, b.Text(loc.Code, KeySelectLanguage))
	}
	return strings.Join(parts, " / ")
}
