// Package render turns reminder decisions into holder-facing text.
package render

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/louisbranch/docwatch/internal/services/documents/domain"
)

const (
	keyApproaching = "reminder.approaching"
	keyFinal       = "reminder.final"
	keyGeneric     = "reminder.generic"
	keyTravel      = "travel.prompt"

	defaultGeneric = "One of your documents needs attention."
)

// Input is one reminder render request.
type Input struct {
	TypeCode string
	// DocumentName overrides the catalog name when set.
	DocumentName string
	Language     string
	Tier         domain.Tier
	DaysLeft     int
	Expiry       domain.Date
}

// Localizer is the minimal message-printer contract required by the renderer.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// Renderer owns the message catalog and language matching. It is immutable
// after construction and safe for concurrent use.
type Renderer struct {
	catalog   catalog.Catalog
	supported []language.Tag
	matcher   language.Matcher
}

// NewRenderer builds the English and Russian catalogs.
func NewRenderer() (*Renderer, error) {
	builder := catalog.NewBuilder(catalog.Fallback(language.English))
	if err := registerEnglish(builder); err != nil {
		return nil, fmt.Errorf("register english messages: %w", err)
	}
	if err := registerRussian(builder); err != nil {
		return nil, fmt.Errorf("register russian messages: %w", err)
	}
	supported := []language.Tag{language.English, language.Russian}
	return &Renderer{
		catalog:   builder,
		supported: supported,
		matcher:   language.NewMatcher(supported),
	}, nil
}

// Tag returns the supported language closest to lang.
func (r *Renderer) Tag(lang string) language.Tag {
	requested, err := language.Parse(strings.TrimSpace(lang))
	if err != nil {
		return r.supported[0]
	}
	_, index, _ := r.matcher.Match(requested)
	return r.supported[index]
}

// Localizer returns a printer for the language closest to lang.
func (r *Renderer) Localizer(lang string) Localizer {
	return message.NewPrinter(r.Tag(lang), message.Catalog(r.catalog))
}

// Render returns the reminder text for in.
func (r *Renderer) Render(in Input) string {
	tag := r.Tag(in.Language)
	return Render(r.Localizer(in.Language), tag, in)
}

// TravelPrompt returns the question sent after an administrative extension.
func (r *Renderer) TravelPrompt(lang, typeCode, documentName string) string {
	loc := r.Localizer(lang)
	name := documentLabel(loc, typeCode, documentName)
	return localizeWithFallback(loc, keyTravel, defaultGeneric, name)
}

// Render formats in with loc. tag selects the date layout.
func Render(loc Localizer, tag language.Tag, in Input) string {
	name := documentLabel(loc, in.TypeCode, in.DocumentName)
	date := formatDate(tag, in.Expiry)
	switch in.Tier {
	case domain.TierApproaching:
		return localizeWithFallback(loc, keyApproaching, defaultGeneric, name, in.DaysLeft, date)
	case domain.TierFinal:
		return localizeWithFallback(loc, keyFinal, defaultGeneric, name, date)
	default:
		return localizeWithFallback(loc, keyGeneric, defaultGeneric)
	}
}

func documentLabel(loc Localizer, typeCode, override string) string {
	if name := strings.TrimSpace(override); name != "" {
		return name
	}
	code := strings.ToUpper(strings.TrimSpace(typeCode))
	return localizeWithFallback(loc, "document."+code, code)
}

func formatDate(tag language.Tag, d domain.Date) string {
	if d.IsZero() {
		return ""
	}
	base, _ := tag.Base()
	if base.String() == "ru" {
		return fmt.Sprintf("%02d.%02d.%04d", d.Day, int(d.Month), d.Year)
	}
	return d.String()
}

func localize(loc Localizer, key string, args ...any) string {
	if loc == nil {
		return key
	}
	return loc.Sprintf(key, args...)
}

func localizeWithFallback(loc Localizer, key string, fallback string, args ...any) string {
	value := strings.TrimSpace(localize(loc, key, args...))
	if value == "" || value == key || strings.HasPrefix(value, key+"%!") {
		return fallback
	}
	return value
}
