package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownField is returned when a wire path names no intake field.
var ErrUnknownField = errors.New("unknown intake field")

// Multipart file keys for the insurance card images.
const (
	KeyCardFront = "insurance_information.insurance_card_front"
	KeyCardBack  = "insurance_information.insurance_card_back"
)

// Consent decodes from a JSON boolean or from the "true"/"false" strings the
// multipart wire format uses.
type Consent bool

func (c *Consent) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*c = false
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("authorization_consent: %w", err)
	}
	*c = Consent(v)
	return nil
}

// UnmarshalJSON also accepts JSON booleans, which some API versions return
// for yes/no answers.
func (y *YesNo) UnmarshalJSON(b []byte) error {
	switch s := string(b); s {
	case "true":
		*y = Yes
	case "false":
		*y = No
	case "null":
		*y = ""
	default:
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*y = YesNo(strings.ToLower(strings.TrimSpace(str)))
	}
	return nil
}

// InsuranceInformation is the editable insurance section. Detail fields are
// only meaningful when HasInsurance is "yes".
type InsuranceInformation struct {
	HasInsurance          YesNo       `json:"has_insurance" yaml:"has_insurance" validate:"required,oneof=yes no"`
	InsuranceCompany      string      `json:"insurance_company,omitempty" yaml:"insurance_company,omitempty" validate:"omitempty,plaintext"`
	PolicyholderName      string      `json:"policyholder_name,omitempty" yaml:"policyholder_name,omitempty" validate:"omitempty,plaintext"`
	RelationshipToStudent string      `json:"relationship_to_student,omitempty" yaml:"relationship_to_student,omitempty" validate:"omitempty,plaintext"`
	MemberID              string      `json:"member_id,omitempty" yaml:"member_id,omitempty" validate:"omitempty,plaintext"`
	GroupNumber           string      `json:"group_number,omitempty" yaml:"group_number,omitempty" validate:"omitempty,plaintext"`
	CardFront             *Attachment `json:"-" yaml:"-" validate:"-"`
	CardBack              *Attachment `json:"-" yaml:"-" validate:"-"`
}

// Draft is the in-progress form as the user is filling it in. Any
// combination of values is representable; Validator.Validate turns a
// consistent Draft into an IntakeForm.
type Draft struct {
	StudentInformation     StudentInformation    `json:"student_information" yaml:"student_information"`
	ParentGuardianContact  ParentGuardianContact `json:"parent_guardian_contact" yaml:"parent_guardian_contact"`
	ServiceRequestType     ServiceRequestType    `json:"service_request_type" yaml:"service_request_type" validate:"required,oneof=start_now opt_in_future"`
	InsuranceInformation   InsuranceInformation  `json:"insurance_information" yaml:"insurance_information"`
	ServiceNeeds           ServiceNeeds          `json:"service_needs" yaml:"service_needs"`
	Demographics           Demographics          `json:"demographics" yaml:"demographics,omitempty"`
	ImmediateSafetyConcern YesNo                 `json:"immediate_safety_concern" yaml:"immediate_safety_concern" validate:"required,oneof=yes no"`
	AuthorizationConsent   Consent               `json:"authorization_consent" yaml:"authorization_consent" validate:"required"`
}

// field binds a wire path to its location in a Draft.
type field struct {
	path  string
	multi bool
	get   func(*Draft) []string
	set   func(*Draft, []string) error
}

func scalar(path string, ptr func(*Draft) *string) field {
	return field{
		path: path,
		get: func(d *Draft) []string {
			if v := *ptr(d); v != "" {
				return []string{v}
			}
			return nil
		},
		set: func(d *Draft, vals []string) error {
			*ptr(d) = ""
			if len(vals) > 0 {
				*ptr(d) = vals[0]
			}
			return nil
		},
	}
}

func list(path string, ptr func(*Draft) *[]string) field {
	return field{
		path:  path,
		multi: true,
		get:   func(d *Draft) []string { return *ptr(d) },
		set: func(d *Draft, vals []string) error {
			*ptr(d) = dedupe(vals)
			return nil
		},
	}
}

// fields lists every wire path in serialization order.
var fields = []field{
	scalar("student_information.first_name", func(d *Draft) *string { return &d.StudentInformation.FirstName }),
	scalar("student_information.last_name", func(d *Draft) *string { return &d.StudentInformation.LastName }),
	scalar("student_information.grade", func(d *Draft) *string { return &d.StudentInformation.Grade }),
	scalar("student_information.school", func(d *Draft) *string { return &d.StudentInformation.School }),
	scalar("student_information.date_of_birth", func(d *Draft) *string { return &d.StudentInformation.DateOfBirth }),
	scalar("student_information.student_id", func(d *Draft) *string { return &d.StudentInformation.StudentID }),

	scalar("parent_guardian_contact.name", func(d *Draft) *string { return &d.ParentGuardianContact.Name }),
	scalar("parent_guardian_contact.email", func(d *Draft) *string { return &d.ParentGuardianContact.Email }),
	scalar("parent_guardian_contact.phone", func(d *Draft) *string { return &d.ParentGuardianContact.Phone }),

	scalar("service_request_type", func(d *Draft) *string { return (*string)(&d.ServiceRequestType) }),

	scalar("insurance_information.has_insurance", func(d *Draft) *string { return (*string)(&d.InsuranceInformation.HasInsurance) }),
	scalar("insurance_information.insurance_company", func(d *Draft) *string { return &d.InsuranceInformation.InsuranceCompany }),
	scalar("insurance_information.policyholder_name", func(d *Draft) *string { return &d.InsuranceInformation.PolicyholderName }),
	scalar("insurance_information.relationship_to_student", func(d *Draft) *string { return &d.InsuranceInformation.RelationshipToStudent }),
	scalar("insurance_information.member_id", func(d *Draft) *string { return &d.InsuranceInformation.MemberID }),
	scalar("insurance_information.group_number", func(d *Draft) *string { return &d.InsuranceInformation.GroupNumber }),

	list("service_needs.service_category", func(d *Draft) *[]string { return &d.ServiceNeeds.ServiceCategory }),
	scalar("service_needs.service_category_other", func(d *Draft) *string { return &d.ServiceNeeds.ServiceCategoryOther }),
	scalar("service_needs.severity_of_concern", func(d *Draft) *string { return (*string)(&d.ServiceNeeds.SeverityOfConcern) }),
	list("service_needs.type_of_service_needed", func(d *Draft) *[]string { return &d.ServiceNeeds.TypeOfServiceNeeded }),
	list("service_needs.family_resources", func(d *Draft) *[]string { return &d.ServiceNeeds.FamilyResources }),
	list("service_needs.referral_concern", func(d *Draft) *[]string { return &d.ServiceNeeds.ReferralConcern }),

	scalar("demographics.sex_at_birth", func(d *Draft) *string { return &d.Demographics.SexAtBirth }),
	list("demographics.race", func(d *Draft) *[]string { return &d.Demographics.Race }),
	scalar("demographics.race_other", func(d *Draft) *string { return &d.Demographics.RaceOther }),
	list("demographics.ethnicity", func(d *Draft) *[]string { return &d.Demographics.Ethnicity }),

	scalar("immediate_safety_concern", func(d *Draft) *string { return (*string)(&d.ImmediateSafetyConcern) }),
	{
		path: "authorization_consent",
		get: func(d *Draft) []string {
			return []string{strconv.FormatBool(bool(d.AuthorizationConsent))}
		},
		set: func(d *Draft, vals []string) error {
			d.AuthorizationConsent = false
			if len(vals) == 0 {
				return nil
			}
			v, err := strconv.ParseBool(vals[0])
			if err != nil {
				return fmt.Errorf("authorization_consent: %q is not true or false", vals[0])
			}
			d.AuthorizationConsent = Consent(v)
			return nil
		},
	},
}

var fieldsByPath = func() map[string]*field {
	m := make(map[string]*field, len(fields))
	for i := range fields {
		m[fields[i].path] = &fields[i]
	}
	return m
}()

// FieldPaths returns every settable wire path in serialization order.
func FieldPaths() []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.path
	}
	return out
}

// IsMulti reports whether path names a multi-select field.
func IsMulti(path string) bool {
	f, ok := fieldsByPath[path]
	return ok && f.multi
}

// Set replaces the value of the field at path. Values are trimmed; empty
// values are dropped. Multi-select fields keep the first occurrence of each
// value in order. Scalar fields accept at most one value.
func (d *Draft) Set(path string, values ...string) error {
	f, ok := fieldsByPath[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	vals := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			vals = append(vals, v)
		}
	}
	if !f.multi && len(vals) > 1 {
		return fmt.Errorf("%s accepts a single value, got %d", path, len(vals))
	}
	return f.set(d, vals)
}

// Normalized returns a copy of d with every value trimmed, empty entries
// dropped and repeated set entries removed, as Set would store them.
func (d *Draft) Normalized() *Draft {
	out := *d
	for i := range fields {
		f := &fields[i]
		vals := make([]string, 0, 1)
		for _, v := range f.get(&out) {
			if v = strings.TrimSpace(v); v != "" {
				vals = append(vals, v)
			}
		}
		_ = f.set(&out, vals)
	}
	return &out
}

// Get returns the current values of the field at path.
func (d *Draft) Get(path string) ([]string, error) {
	f, ok := fieldsByPath[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	return append([]string(nil), f.get(d)...), nil
}

// Toggle flips membership of value in a multi-select field, the way a
// checkbox does.
func (d *Draft) Toggle(path, value string) error {
	f, ok := fieldsByPath[path]
	if !ok || !f.multi {
		return fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	cur := f.get(d)
	next := make([]string, 0, len(cur)+1)
	found := false
	for _, v := range cur {
		if v == value {
			found = true
			continue
		}
		next = append(next, v)
	}
	if !found {
		next = append(next, value)
	}
	return f.set(d, next)
}

func dedupe(vals []string) []string {
	if len(vals) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(vals))
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func contains(vals []string, want string) bool {
	for _, v := range vals {
		if v == want {
			return true
		}
	}
	return false
}
