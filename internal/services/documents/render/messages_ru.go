package render

import (
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message/catalog"
)

func registerRussian(b *catalog.Builder) error {
	lang := language.Russian

	if err := b.SetString(lang, keyGeneric, "Один из ваших документов требует внимания."); err != nil {
		return err
	}
	if err := b.Set(lang, keyApproaching, plural.Selectf(2, "%d",
		"=0", "%[1]s: срок истекает сегодня (%[3]s). Продлите документ.",
		plural.One, "%[1]s: до окончания срока остался %[2]d день (%[3]s).",
		plural.Few, "%[1]s: до окончания срока осталось %[2]d дня (%[3]s).",
		plural.Many, "%[1]s: до окончания срока осталось %[2]d дней (%[3]s).",
		plural.Other, "%[1]s: до окончания срока осталось %[2]d дня (%[3]s).",
	)); err != nil {
		return err
	}
	if err := b.SetString(lang, keyFinal, "%[1]s: срок истёк %[2]s. Продлите документ как можно скорее, чтобы избежать штрафа."); err != nil {
		return err
	}
	if err := b.SetString(lang, keyTravel, "%[1]s отмечен(а) как продлённый. Вы всё ещё находитесь в стране?"); err != nil {
		return err
	}

	names := map[string]string{
		"document.MIGRATION_CARD": "Миграционная карта",
		"document.TEMP_REG":       "Временная регистрация",
		"document.MED_1":          "Медицинская справка 1",
		"document.MED_2":          "Медицинская справка 2",
		"document.MED_3":          "Медицинская справка 3",
		"document.VISA":           "Виза",
	}
	for key, value := range names {
		if err := b.SetString(lang, key, value); err != nil {
			return err
		}
	}
	return nil
}
