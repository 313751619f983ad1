package domain

import (
	"fmt"
	"strings"
)

// CitizenshipClass groups countries that share deadline rules.
type CitizenshipClass string

const (
	// CitizenshipTreatyBloc covers members of the Eurasian Economic Union.
	CitizenshipTreatyBloc CitizenshipClass = "treaty_bloc"
	// CitizenshipOther covers every other citizenship.
	CitizenshipOther CitizenshipClass = "other"
)

// treatyBlocMembers lists ISO alpha-3 codes handled under bloc rules.
var treatyBlocMembers = map[string]struct{}{
	"ARM": {},
	"BLR": {},
	"KAZ": {},
	"KGZ": {},
}

// ClassifyCitizenship maps an ISO alpha-3 country code to its rule class.
// Unknown or empty codes fall into the non-bloc class.
func ClassifyCitizenship(countryCode string) CitizenshipClass {
	if _, ok := treatyBlocMembers[strings.ToUpper(strings.TrimSpace(countryCode))]; ok {
		return CitizenshipTreatyBloc
	}
	return CitizenshipOther
}

// Rules are the day offsets that apply to one citizenship class.
type Rules struct {
	RegistrationDays int
	MedicalDays      int
	CardDurationDays int
	VisaRequired     bool
}

// RuleTable holds per-class day counts. It is built once from configuration
// and read concurrently afterwards.
type RuleTable struct {
	BlocRegistrationDays  int
	BlocMedicalDays       int
	OtherRegistrationDays int
	OtherMedicalDays      int
	CardDurationDays      int
}

// DefaultRuleTable returns the day offsets used when nothing is configured.
// Treaty-bloc members register within a shorter window than everyone else.
func DefaultRuleTable() RuleTable {
	return RuleTable{
		BlocRegistrationDays:  30,
		BlocMedicalDays:       30,
		OtherRegistrationDays: 60,
		OtherMedicalDays:      30,
		CardDurationDays:      90,
	}
}

// Validate checks a configured table. Every offset must be positive and the
// treaty-bloc registration window must be the shorter one.
func (t RuleTable) Validate() error {
	offsets := []struct {
		name string
		days int
	}{
		{"bloc registration days", t.BlocRegistrationDays},
		{"bloc medical days", t.BlocMedicalDays},
		{"other registration days", t.OtherRegistrationDays},
		{"other medical days", t.OtherMedicalDays},
		{"card duration days", t.CardDurationDays},
	}
	for _, offset := range offsets {
		if offset.days <= 0 {
			return invalidArgument(fmt.Sprintf("%s must be positive", offset.name))
		}
	}
	if t.BlocRegistrationDays >= t.OtherRegistrationDays {
		return invalidArgument(fmt.Sprintf("bloc registration days (%d) must be shorter than other registration days (%d)",
			t.BlocRegistrationDays, t.OtherRegistrationDays))
	}
	return nil
}

// Resolve returns the rules for class.
func (t RuleTable) Resolve(class CitizenshipClass) Rules {
	if class == CitizenshipTreatyBloc {
		return Rules{
			RegistrationDays: t.BlocRegistrationDays,
			MedicalDays:      t.BlocMedicalDays,
			CardDurationDays: t.CardDurationDays,
			VisaRequired:     false,
		}
	}
	return Rules{
		RegistrationDays: t.OtherRegistrationDays,
		MedicalDays:      t.OtherMedicalDays,
		CardDurationDays: t.CardDurationDays,
		VisaRequired:     true,
	}
}

// ResolveForCountry is Resolve applied to ClassifyCitizenship(countryCode).
func (t RuleTable) ResolveForCountry(countryCode string) Rules {
	return t.Resolve(ClassifyCitizenship(countryCode))
}

// EstimateEntryDate back-computes the entry date from a migration card expiry.
func EstimateEntryDate(cardExpiry Date, durationDays int) Date {
	return cardExpiry.AddDays(-durationDays)
}

// Deadline returns the date offsetDays after entry.
func Deadline(entry Date, offsetDays int) Date {
	return entry.AddDays(offsetDays)
}

// DerivedDeadlines are the follow-up deadlines implied by a migration card.
type DerivedDeadlines struct {
	EntryDate    Date
	Registration Date
	Medical      Date
}

// DeriveDeadlines computes registration and medical deadlines from the card
// expiry under rules.
func DeriveDeadlines(cardExpiry Date, rules Rules) DerivedDeadlines {
	entry := EstimateEntryDate(cardExpiry, rules.CardDurationDays)
	return DerivedDeadlines{
		EntryDate:    entry,
		Registration: Deadline(entry, rules.RegistrationDays),
		Medical:      Deadline(entry, rules.MedicalDays),
	}
}
