package intake

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// Tags reported by the struct-level rules.
const (
	tagInsuranceDetails = "insurance_details"
	tagOtherDetails     = "other_details"
)

// FieldErrors maps a wire path to a user-facing message.
type FieldErrors map[string]string

// Paths returns the failing paths in sorted order.
func (fe FieldErrors) Paths() []string {
	out := make([]string, 0, len(fe))
	for p := range fe {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, p := range fe.Paths() {
		parts = append(parts, p+": "+fe[p])
	}
	return strings.Join(parts, "; ")
}

// ValidationError is returned when a submission is blocked client-side.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("intake form has %d invalid field(s): %s", len(e.Fields), e.Fields.Error())
}

// Result is the outcome of validating a draft.
type Result struct {
	Form          *IntakeForm `json:"-"`
	Errors        FieldErrors `json:"errors"`
	Active        Active      `json:"active"`
	SafetyWarning bool        `json:"safety_warning"`
}

// Valid reports whether the draft passed every active rule.
func (r Result) Valid() bool { return len(r.Errors) == 0 }

// Validator checks drafts against the intake schema. It is safe for
// concurrent use.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds the schema. An error here means a rule could not be
// registered, which is a programming mistake rather than bad input.
func NewValidator() (*Validator, error) {
	v := validator.New()
	v.RegisterTagNameFunc(func(sf reflect.StructField) string {
		name := strings.SplitN(sf.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	policy := bluemonday.StrictPolicy()
	if err := v.RegisterValidation("plaintext", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return html.UnescapeString(policy.Sanitize(s)) == s
	}); err != nil {
		return nil, fmt.Errorf("register plaintext rule: %w", err)
	}

	v.RegisterStructValidation(insuranceRule, InsuranceInformation{})
	v.RegisterStructValidation(serviceNeedsRule, ServiceNeeds{})
	return &Validator{v: v}, nil
}

// MustValidator is NewValidator for package-level initialization.
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// insuranceRule demands the policy details when the student is insured. The
// single combined error is attached to insurance_company.
func insuranceRule(sl validator.StructLevel) {
	in := sl.Current().Interface().(InsuranceInformation)
	if in.HasInsurance != Yes {
		return
	}
	if blank(in.InsuranceCompany) || blank(in.PolicyholderName) || blank(in.MemberID) {
		sl.ReportError(in.InsuranceCompany, "insurance_company", "InsuranceCompany", tagInsuranceDetails, "")
	}
}

func serviceNeedsRule(sl validator.StructLevel) {
	sn := sl.Current().Interface().(ServiceNeeds)
	if contains(sn.ServiceCategory, OtherServiceCategory) && blank(sn.ServiceCategoryOther) {
		sl.ReportError(sn.ServiceCategoryOther, "service_category_other", "ServiceCategoryOther", tagOtherDetails, "")
	}
}

// Validate never fails on bad input: every problem is returned in
// Result.Errors. Errors on inactive fields are dropped.
func (v *Validator) Validate(d *Draft) Result {
	if d == nil {
		d = &Draft{}
	}
	d = d.Normalized()
	active := Resolve(d)
	res := Result{
		Errors:        FieldErrors{},
		Active:        active,
		SafetyWarning: d.ImmediateSafetyConcern == Yes,
	}

	if err := v.v.Struct(d); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			panic(fmt.Sprintf("intake: unexpected validator failure: %v", err))
		}
		for _, fe := range ves {
			path := namespacePath(fe.Namespace())
			if !active.Includes(path) {
				continue
			}
			if _, seen := res.Errors[path]; !seen {
				res.Errors[path] = message(path, fe)
			}
		}
	}

	if res.Valid() {
		res.Form = d.form(active)
	}
	return res
}

// namespacePath drops the root struct name: "Draft.a.b" becomes "a.b".
func namespacePath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(path string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		if path == "authorization_consent" {
			return "You must authorize consent to submit this form"
		}
		return "This field is required"
	case "email":
		return "Enter a valid email address"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "Select at least one option"
		}
		if path == "parent_guardian_contact.phone" {
			return "Phone number must be at least 10 digits"
		}
		return fmt.Sprintf("Must be at least %s characters", fe.Param())
	case "oneof":
		return "Select one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "datetime":
		return "Enter the date as YYYY-MM-DD"
	case "plaintext":
		return "Remove HTML or markup from this field"
	case tagInsuranceDetails:
		return "Insurance company, policyholder name, and member ID are required when the student has insurance"
	case tagOtherDetails:
		return "Describe the other service needed"
	}
	return "Invalid value"
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// form copies an already-validated draft into an IntakeForm, dropping
// inactive fields.
func (d *Draft) form(active Active) *IntakeForm {
	f := &IntakeForm{
		Student:                d.StudentInformation,
		Contact:                d.ParentGuardianContact,
		RequestType:            d.ServiceRequestType,
		Insurance:              NoInsurance{},
		Needs:                  d.ServiceNeeds,
		ImmediateSafetyConcern: d.ImmediateSafetyConcern,
		AuthorizationConsent:   bool(d.AuthorizationConsent),
	}
	f.Needs.ServiceCategory = cloneStrings(d.ServiceNeeds.ServiceCategory)
	f.Needs.TypeOfServiceNeeded = cloneStrings(d.ServiceNeeds.TypeOfServiceNeeded)
	f.Needs.FamilyResources = cloneStrings(d.ServiceNeeds.FamilyResources)
	f.Needs.ReferralConcern = cloneStrings(d.ServiceNeeds.ReferralConcern)
	if !active.ServiceCategoryOther {
		f.Needs.ServiceCategoryOther = ""
	}

	if active.InsuranceDetails {
		in := d.InsuranceInformation
		f.Insurance = Insured{
			InsuranceCompany:      in.InsuranceCompany,
			PolicyholderName:      in.PolicyholderName,
			MemberID:              in.MemberID,
			RelationshipToStudent: in.RelationshipToStudent,
			GroupNumber:           in.GroupNumber,
			CardFront:             in.CardFront,
			CardBack:              in.CardBack,
		}
	}

	demo := d.Demographics
	demo.Race = cloneStrings(demo.Race)
	demo.Ethnicity = cloneStrings(demo.Ethnicity)
	if !active.RaceOther {
		demo.RaceOther = ""
	}
	if !demo.IsZero() {
		f.Demographics = &demo
	}
	return f
}

// Draft converts a validated form back into an editable draft.
func (f *IntakeForm) Draft() *Draft {
	d := &Draft{
		StudentInformation:     f.Student,
		ParentGuardianContact:  f.Contact,
		ServiceRequestType:     f.RequestType,
		ServiceNeeds:           f.Needs,
		ImmediateSafetyConcern: f.ImmediateSafetyConcern,
		AuthorizationConsent:   Consent(f.AuthorizationConsent),
	}
	d.ServiceNeeds.ServiceCategory = cloneStrings(f.Needs.ServiceCategory)
	d.ServiceNeeds.TypeOfServiceNeeded = cloneStrings(f.Needs.TypeOfServiceNeeded)
	d.ServiceNeeds.FamilyResources = cloneStrings(f.Needs.FamilyResources)
	d.ServiceNeeds.ReferralConcern = cloneStrings(f.Needs.ReferralConcern)

	switch in := f.Insurance.(type) {
	case Insured:
		d.InsuranceInformation = InsuranceInformation{
			HasInsurance:          Yes,
			InsuranceCompany:      in.InsuranceCompany,
			PolicyholderName:      in.PolicyholderName,
			RelationshipToStudent: in.RelationshipToStudent,
			MemberID:              in.MemberID,
			GroupNumber:           in.GroupNumber,
			CardFront:             in.CardFront,
			CardBack:              in.CardBack,
		}
	default:
		d.InsuranceInformation = InsuranceInformation{HasInsurance: No}
	}

	if f.Demographics != nil {
		d.Demographics = *f.Demographics
		d.Demographics.Race = cloneStrings(f.Demographics.Race)
		d.Demographics.Ethnicity = cloneStrings(f.Demographics.Ethnicity)
	}
	return d
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	return append([]string(nil), in...)
}
