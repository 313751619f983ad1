package render

import (
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message/catalog"
)

func registerEnglish(b *catalog.Builder) error {
	lang := language.English

	if err := b.SetString(lang, keyGeneric, defaultGeneric); err != nil {
		return err
	}
	if err := b.Set(lang, keyApproaching, plural.Selectf(2, "%d",
		"=0", "%[1]s expires today (%[3]s). Renew it now.",
		plural.One, "%[1]s expires in %[2]d day, on %[3]s.",
		plural.Other, "%[1]s expires in %[2]d days, on %[3]s.",
	)); err != nil {
		return err
	}
	if err := b.SetString(lang, keyFinal, "%[1]s expired on %[2]s. Renew it as soon as possible to avoid a fine."); err != nil {
		return err
	}
	if err := b.SetString(lang, keyTravel, "Your %[1]s was marked as extended. Are you still in the country?"); err != nil {
		return err
	}

	names := map[string]string{
		"document.MIGRATION_CARD": "Migration card",
		"document.TEMP_REG":       "Temporary registration",
		"document.MED_1":          "Medical certificate 1",
		"document.MED_2":          "Medical certificate 2",
		"document.MED_3":          "Medical certificate 3",
		"document.VISA":           "Visa",
	}
	for key, value := range names {
		if err := b.SetString(lang, key, value); err != nil {
			return err
		}
	}
	return nil
}
