package hipaa

import (
	"strings"

	"github.com/rs/zerolog"
)

// PHISection groups the intake wire keys of one form section that carry
// Protected Health Information or direct identifiers.
type PHISection struct {
	// Section is the dotted prefix of the form section.
	Section string
	// Fields are the leaf names under Section.
	Fields []string
}

// DefaultPHISections lists the intake fields treated as PHI. Multi-select
// answers describing the student's needs are included because together with
// the school they identify the student.
func DefaultPHISections() []PHISection {
	return []PHISection{
		{
			Section: "student_information",
			Fields:  []string{"first_name", "last_name", "date_of_birth", "student_id"},
		},
		{
			Section: "parent_guardian_contact",
			Fields:  []string{"name", "email", "phone"},
		},
		{
			Section: "insurance_information",
			Fields: []string{
				"insurance_company", "policyholder_name", "member_id", "group_number",
				"insurance_card_front", "insurance_card_back",
			},
		},
		{
			Section: "service_needs",
			Fields:  []string{"service_category_other", "referral_concern"},
		},
		{
			Section: "demographics",
			Fields:  []string{"sex_at_birth", "race", "race_other", "ethnicity"},
		},
	}
}

// PHIFieldPaths returns "<section>.<field>" keys for fast look-up.
func PHIFieldPaths() map[string]bool {
	paths := make(map[string]bool, 24)
	for _, s := range DefaultPHISections() {
		for _, f := range s.Fields {
			paths[s.Section+"."+f] = true
		}
	}
	return paths
}

var phiPaths = PHIFieldPaths()

// IsPHI reports whether a wire key (indexed or not) carries PHI.
func IsPHI(key string) bool {
	if i := strings.IndexByte(key, '['); i >= 0 {
		key = key[:i]
	}
	return phiPaths[key]
}

// RedactKeys replaces PHI keys with "[phi]" so a payload's shape can be
// logged without its identifiers. Repeated redactions collapse.
func RedactKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	redacted := 0
	for _, k := range keys {
		if IsPHI(k) {
			redacted++
			continue
		}
		out = append(out, k)
	}
	if redacted > 0 {
		out = append(out, "[phi]")
	}
	return out
}

// LogPayloadShape logs the non-PHI keys of an outbound payload at debug.
func LogPayloadShape(logger zerolog.Logger, msg string, keys []string) {
	logger.Debug().
		Strs("keys", RedactKeys(keys)).
		Int("field_count", len(keys)).
		Msg(msg)
}
