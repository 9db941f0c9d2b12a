package intake

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var testValidator = MustValidator()

func validDraft() *Draft {
	return &Draft{
		StudentInformation: StudentInformation{
			FirstName: "Ana", LastName: "Lee", Grade: "9th", School: "Lincoln HS",
			DateOfBirth: "2010-05-01", StudentID: "S123",
		},
		ParentGuardianContact: ParentGuardianContact{Name: "Maria Lee", Email: "maria@example.com", Phone: "5551234567"},
		ServiceRequestType:    RequestStartNow,
		InsuranceInformation:  InsuranceInformation{HasInsurance: No},
		ServiceNeeds: ServiceNeeds{
			ServiceCategory:     []string{"mental health"},
			SeverityOfConcern:   SeverityMild,
			TypeOfServiceNeeded: []string{"Individual Therapy"},
		},
		ImmediateSafetyConcern: No,
		AuthorizationConsent:   true,
	}
}

func insuredDraft() *Draft {
	d := validDraft()
	d.InsuranceInformation = InsuranceInformation{
		HasInsurance:          Yes,
		InsuranceCompany:      "Blue Shield",
		PolicyholderName:      "Maria Lee",
		RelationshipToStudent: "Mother",
		MemberID:              "M-998",
		GroupNumber:           "G-12",
	}
	return d
}

func TestValidate_ValidDraft(t *testing.T) {
	res := testValidator.Validate(validDraft())
	if !res.Valid() {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
	if res.Form == nil {
		t.Fatal("expected form on valid result")
	}
	if _, ok := res.Form.Insurance.(NoInsurance); !ok {
		t.Errorf("expected NoInsurance, got %T", res.Form.Insurance)
	}
	if res.Form.Demographics != nil {
		t.Error("expected no demographics when none were given")
	}
	if res.SafetyWarning {
		t.Error("unexpected safety warning")
	}
}

func TestValidate_EmptyDraftReportsRequiredFields(t *testing.T) {
	res := testValidator.Validate(&Draft{})
	if res.Valid() {
		t.Fatal("expected errors")
	}
	for _, path := range []string{
		"student_information.first_name",
		"student_information.date_of_birth",
		"parent_guardian_contact.email",
		"service_request_type",
		"insurance_information.has_insurance",
		"service_needs.service_category",
		"service_needs.severity_of_concern",
		"service_needs.type_of_service_needed",
		"immediate_safety_concern",
		"authorization_consent",
	} {
		if _, ok := res.Errors[path]; !ok {
			t.Errorf("expected error at %s", path)
		}
	}
	for _, path := range []string{
		"service_needs.family_resources",
		"service_needs.referral_concern",
		"demographics.race",
		"insurance_information.insurance_company",
	} {
		if msg, ok := res.Errors[path]; ok {
			t.Errorf("unexpected error at %s: %s", path, msg)
		}
	}
	if res.Form != nil {
		t.Error("invalid result must not carry a form")
	}
}

func TestValidate_InsuranceDetailsAttachToCompany(t *testing.T) {
	tests := []struct {
		name  string
		clear func(*InsuranceInformation)
	}{
		{"company", func(in *InsuranceInformation) { in.InsuranceCompany = "" }},
		{"policyholder", func(in *InsuranceInformation) { in.PolicyholderName = "  " }},
		{"member id", func(in *InsuranceInformation) { in.MemberID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := insuredDraft()
			tt.clear(&d.InsuranceInformation)
			res := testValidator.Validate(d)
			want := []string{"insurance_information.insurance_company"}
			if diff := cmp.Diff(want, res.Errors.Paths()); diff != "" {
				t.Errorf("error paths (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidate_InsuredOptionalDetails(t *testing.T) {
	d := insuredDraft()
	d.InsuranceInformation.GroupNumber = ""
	d.InsuranceInformation.RelationshipToStudent = ""
	res := testValidator.Validate(d)
	if !res.Valid() {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
	in, ok := res.Form.Insurance.(Insured)
	if !ok {
		t.Fatalf("expected Insured, got %T", res.Form.Insurance)
	}
	if in.InsuranceCompany != "Blue Shield" || in.MemberID != "M-998" {
		t.Errorf("unexpected insured details %+v", in)
	}
}

func TestValidate_UninsuredIgnoresDetails(t *testing.T) {
	d := validDraft()
	d.InsuranceInformation.InsuranceCompany = "<b>stale</b>"
	res := testValidator.Validate(d)
	if !res.Valid() {
		t.Fatalf("inactive insurance fields must not be validated: %v", res.Errors)
	}
	if _, ok := res.Form.Insurance.(NoInsurance); !ok {
		t.Errorf("expected NoInsurance, got %T", res.Form.Insurance)
	}
}

func TestValidate_OtherServiceNeedsText(t *testing.T) {
	d := validDraft()
	d.ServiceNeeds.ServiceCategory = []string{"mental health", OtherServiceCategory}
	res := testValidator.Validate(d)
	if _, ok := res.Errors["service_needs.service_category_other"]; !ok {
		t.Fatalf("expected other text error, got %v", res.Errors)
	}

	d.ServiceNeeds.ServiceCategoryOther = "Tutoring"
	if res := testValidator.Validate(d); !res.Valid() {
		t.Fatalf("expected valid, got %v", res.Errors)
	}

	d.ServiceNeeds.ServiceCategory = []string{"mental health"}
	res = testValidator.Validate(d)
	if !res.Valid() {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
	if res.Form.Needs.ServiceCategoryOther != "" {
		t.Error("inactive other text must be dropped from the form")
	}
}

func TestValidate_FieldRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Draft)
		path   string
		substr string
	}{
		{"bad email", func(d *Draft) { d.ParentGuardianContact.Email = "maria" }, "parent_guardian_contact.email", "email"},
		{"short phone", func(d *Draft) { d.ParentGuardianContact.Phone = "555" }, "parent_guardian_contact.phone", "10 digits"},
		{"bad date", func(d *Draft) { d.StudentInformation.DateOfBirth = "05/01/2010" }, "student_information.date_of_birth", "YYYY-MM-DD"},
		{"bad severity", func(d *Draft) { d.ServiceNeeds.SeverityOfConcern = "extreme" }, "service_needs.severity_of_concern", "mild"},
		{"bad request type", func(d *Draft) { d.ServiceRequestType = "later" }, "service_request_type", "start_now"},
		{"markup", func(d *Draft) { d.StudentInformation.School = `<script>alert(1)</script>` }, "student_information.school", "HTML"},
		{"no consent", func(d *Draft) { d.AuthorizationConsent = false }, "authorization_consent", "authorize consent"},
		{"empty needs", func(d *Draft) { d.ServiceNeeds.TypeOfServiceNeeded = nil }, "service_needs.type_of_service_needed", "at least one"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.mutate(d)
			res := testValidator.Validate(d)
			msg, ok := res.Errors[tt.path]
			if !ok {
				t.Fatalf("expected error at %s, got %v", tt.path, res.Errors)
			}
			if !strings.Contains(msg, tt.substr) {
				t.Errorf("message %q does not mention %q", msg, tt.substr)
			}
		})
	}
}

func TestValidate_PlainTextAllowsPunctuation(t *testing.T) {
	d := validDraft()
	d.StudentInformation.School = "St. Mary's & Lincoln (K-12)"
	d.ParentGuardianContact.Name = `O'Brien "Mo"`
	if res := testValidator.Validate(d); !res.Valid() {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
}

func TestValidate_SafetyWarning(t *testing.T) {
	d := validDraft()
	d.ImmediateSafetyConcern = Yes
	res := testValidator.Validate(d)
	if !res.Valid() || !res.SafetyWarning {
		t.Fatalf("expected valid result with safety warning, got %+v", res)
	}
}

func TestValidate_Demographics(t *testing.T) {
	d := validDraft()
	d.Demographics = Demographics{Race: []string{"Asian", OtherRace}, Ethnicity: []string{"Not Hispanic or Latino"}}
	res := testValidator.Validate(d)
	if !res.Valid() {
		t.Fatalf("race_other is optional: %v", res.Errors)
	}
	if res.Form.Demographics == nil || len(res.Form.Demographics.Race) != 2 {
		t.Fatalf("expected demographics on form, got %+v", res.Form.Demographics)
	}

	d.Demographics.Race = []string{"Asian"}
	d.Demographics.RaceOther = "left over"
	res = testValidator.Validate(d)
	if res.Form.Demographics.RaceOther != "" {
		t.Error("inactive race_other must be dropped")
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Fields: FieldErrors{"b": "second", "a": "first"}}
	want := "intake form has 2 invalid field(s): a: first; b: second"
	if err.Error() != want {
		t.Errorf("got %q", err.Error())
	}
}

func TestValidate_BlankValuesCountAsMissing(t *testing.T) {
	d := validDraft()
	d.StudentInformation.FirstName = "   "
	d.StudentInformation.StudentID = "\t"
	d.ServiceNeeds.ServiceCategory = []string{" "}
	d.ServiceNeeds.TypeOfServiceNeeded = []string{"Individual Therapy", ""}

	res := testValidator.Validate(d)
	for _, path := range []string{
		"student_information.first_name",
		"student_information.student_id",
		"service_needs.service_category",
	} {
		if _, ok := res.Errors[path]; !ok {
			t.Errorf("expected error at %s, got %v", path, res.Errors)
		}
	}
	if _, ok := res.Errors["service_needs.type_of_service_needed"]; ok {
		t.Errorf("blank entry next to a real one should be dropped, got %v", res.Errors)
	}
	if res.Form != nil {
		t.Error("invalid draft produced a form")
	}
}

func TestValidate_TrimsBeforeSerializing(t *testing.T) {
	d := validDraft()
	d.StudentInformation.FirstName = " Ana "
	d.ServiceNeeds.ServiceCategory = []string{"mental health", "mental health "}

	res := testValidator.Validate(d)
	if !res.Valid() {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
	p := Serialize(res.Form)
	if got := p.Values()["student_information.first_name"]; len(got) != 1 || got[0] != "Ana" {
		t.Errorf("first_name = %q", got)
	}
	if p.Has("service_needs.service_category[1]") {
		t.Error("repeated category was serialized twice")
	}
}
