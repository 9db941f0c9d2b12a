package intake

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustForm(t *testing.T, d *Draft) *IntakeForm {
	t.Helper()
	res := testValidator.Validate(d)
	if !res.Valid() {
		t.Fatalf("draft invalid: %v", res.Errors)
	}
	return res.Form
}

func TestSerialize_Uninsured(t *testing.T) {
	p := Serialize(mustForm(t, validDraft()))
	want := []WireField{
		{"student_information.first_name", "Ana"},
		{"student_information.last_name", "Lee"},
		{"student_information.grade", "9th"},
		{"student_information.school", "Lincoln HS"},
		{"student_information.date_of_birth", "2010-05-01"},
		{"student_information.student_id", "S123"},
		{"parent_guardian_contact.name", "Maria Lee"},
		{"parent_guardian_contact.email", "maria@example.com"},
		{"parent_guardian_contact.phone", "5551234567"},
		{"service_request_type", "start_now"},
		{"insurance_information.has_insurance", "no"},
		{"service_needs.service_category[0]", "mental health"},
		{"service_needs.severity_of_concern", "mild"},
		{"service_needs.type_of_service_needed[0]", "Individual Therapy"},
		{"immediate_safety_concern", "no"},
		{"authorization_consent", "true"},
	}
	if diff := cmp.Diff(want, p.Fields); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}
	if len(p.Files) != 0 {
		t.Errorf("expected no files, got %d", len(p.Files))
	}
}

func TestSerialize_NoInsuranceDropsStaleDetails(t *testing.T) {
	d := validDraft()
	d.InsuranceInformation.InsuranceCompany = "Old Co"
	d.InsuranceInformation.MemberID = "X"
	d.InsuranceInformation.CardFront = &Attachment{FileName: "f.jpg", ContentType: "image/jpeg", Data: []byte{1}}
	p := Serialize(mustForm(t, d))
	for _, k := range p.Keys() {
		if insuranceDetailPaths[k] {
			t.Errorf("unexpected insurance detail key %s", k)
		}
	}
	if len(p.Files) != 0 {
		t.Error("card images must not be sent for an uninsured student")
	}
}

func TestSerialize_InsuredWithCardsAndLists(t *testing.T) {
	d := insuredDraft()
	d.InsuranceInformation.CardFront = &Attachment{FileName: "front.png", ContentType: "image/png", Data: []byte("front")}
	d.ServiceNeeds.ServiceCategory = []string{"mental health", OtherServiceCategory, "substance use"}
	d.ServiceNeeds.ServiceCategoryOther = "Tutoring"
	d.ServiceNeeds.FamilyResources = []string{}
	p := Serialize(mustForm(t, d))
	m := p.Map()

	for k, want := range map[string]string{
		"insurance_information.insurance_company": "Blue Shield",
		"insurance_information.member_id":         "M-998",
		"service_needs.service_category[0]":       "mental health",
		"service_needs.service_category[1]":       OtherServiceCategory,
		"service_needs.service_category[2]":       "substance use",
		"service_needs.service_category_other":    "Tutoring",
	} {
		if m[k] != want {
			t.Errorf("%s = %q, want %q", k, m[k], want)
		}
	}
	if p.Has("service_needs.family_resources[0]") {
		t.Error("empty optional set must be omitted")
	}
	if !p.Has(KeyCardFront) || p.Has(KeyCardBack) {
		t.Errorf("unexpected file keys %v", p.Keys())
	}
}

func TestSerialize_YesNoAndConsentEncoding(t *testing.T) {
	d := validDraft()
	d.ImmediateSafetyConcern = Yes
	m := Serialize(mustForm(t, d)).Map()
	if m["immediate_safety_concern"] != "yes" {
		t.Errorf("immediate_safety_concern = %q", m["immediate_safety_concern"])
	}
	if m["authorization_consent"] != "true" {
		t.Errorf("authorization_consent = %q", m["authorization_consent"])
	}
}

func TestRoundTrip_SerializeParseIsIdempotent(t *testing.T) {
	drafts := map[string]*Draft{
		"uninsured": validDraft(),
		"insured":   insuredDraft(),
		"full": func() *Draft {
			d := insuredDraft()
			d.ServiceNeeds.ServiceCategory = []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", OtherServiceCategory}
			d.ServiceNeeds.ServiceCategoryOther = "Other help"
			d.ServiceNeeds.FamilyResources = []string{"Food"}
			d.ServiceNeeds.ReferralConcern = []string{"Anxiety", "Sleep"}
			d.Demographics = Demographics{SexAtBirth: "Female", Race: []string{OtherRace}, RaceOther: "Mixed", Ethnicity: []string{"Hispanic"}}
			return d
		}(),
		"padded and repeated": func() *Draft {
			d := validDraft()
			d.StudentInformation.School = "  Lincoln HS "
			d.ServiceNeeds.ServiceCategory = []string{"mental health", " mental health", "", "Grief"}
			d.ServiceNeeds.ReferralConcern = []string{"Sleep", "Sleep"}
			return d
		}(),
	}
	for name, d := range drafts {
		t.Run(name, func(t *testing.T) {
			first := Serialize(mustForm(t, d))
			parsed, err := ParseFields(first.Values())
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			second := Serialize(mustForm(t, parsed))
			if diff := cmp.Diff(first.Fields, second.Fields); diff != "" {
				t.Errorf("round trip changed payload (-first +second):\n%s", diff)
			}
		})
	}
}

func TestRoundTrip_DetailsToDraft(t *testing.T) {
	body := []byte(`{
		"student_uuid": "0b5f6a4e-0000-4000-8000-000000000001",
		"status": "pending",
		"student_information": {"first_name": "Ana", "last_name": "Lee", "grade": "9th", "school": "Lincoln HS", "date_of_birth": "2010-05-01", "student_id": "S123"},
		"parent_guardian_contact": {"name": "Maria Lee", "email": "maria@example.com", "phone": "5551234567"},
		"service_request_type": "start_now",
		"insurance_information": {"has_insurance": "yes", "insurance_company": "Blue Shield", "policyholder_name": "Maria Lee", "member_id": "M-998"},
		"service_needs": {"service_category": ["mental health"], "severity_of_concern": "mild", "type_of_service_needed": ["Individual Therapy"]},
		"immediate_safety_concern": false,
		"authorization_consent": "true"
	}`)
	d, err := DecodeDetails(body)
	if err != nil {
		t.Fatal(err)
	}
	if d.ImmediateSafetyConcern != No || !bool(d.AuthorizationConsent) {
		t.Errorf("unexpected decoded answers %q %v", d.ImmediateSafetyConcern, d.AuthorizationConsent)
	}
	first := Serialize(mustForm(t, d))
	again, err := ParseFields(first.Values())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first.Fields, Serialize(mustForm(t, again)).Fields); diff != "" {
		t.Errorf("details round trip not idempotent:\n%s", diff)
	}
}

func TestParseFields(t *testing.T) {
	d, err := ParseFields(map[string][]string{
		"service_needs.service_category[1]": {"second"},
		"service_needs.service_category[0]": {"first"},
		"demographics.race":                 {"A", "B", "A"},
		"student_information.first_name":    {"  Ana "},
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"first", "second"}, d.ServiceNeeds.ServiceCategory); diff != "" {
		t.Errorf("indexed order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A", "B"}, d.Demographics.Race); diff != "" {
		t.Errorf("repeated keys (-want +got):\n%s", diff)
	}
	if d.StudentInformation.FirstName != "Ana" {
		t.Errorf("first_name = %q", d.StudentInformation.FirstName)
	}
}

func TestParseFields_Errors(t *testing.T) {
	if _, err := ParseFields(map[string][]string{"nope": {"x"}}); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
	if _, err := ParseFields(map[string][]string{"demographics.race[x]": {"x"}}); err == nil {
		t.Error("expected malformed index error")
	}
	if _, err := ParseFields(map[string][]string{"student_information.grade": {"9", "10"}}); err == nil {
		t.Error("expected error for repeated scalar")
	}
}

func TestPayload_WriteMultipart(t *testing.T) {
	d := insuredDraft()
	d.InsuranceInformation.CardBack = &Attachment{FileName: "back.jpg", ContentType: "image/jpeg", Data: []byte("jpegbytes")}
	p := Serialize(mustForm(t, d))

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := p.WriteMultipart(w); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(p.Values(), form.Value); diff != "" {
		t.Errorf("text parts (-want +got):\n%s", diff)
	}
	fhs := form.File[KeyCardBack]
	if len(fhs) != 1 {
		t.Fatalf("expected one back card part, got %d", len(fhs))
	}
	if fhs[0].Filename != "back.jpg" || fhs[0].Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("unexpected part header %v", fhs[0].Header)
	}
	f, _ := fhs[0].Open()
	data, _ := io.ReadAll(f)
	if string(data) != "jpegbytes" {
		t.Errorf("part data = %q", data)
	}
}

func TestDraft_SetGetToggle(t *testing.T) {
	d := &Draft{}
	if err := d.Set("service_needs.referral_concern", "Anxiety", " ", "Anxiety", "Sleep"); err != nil {
		t.Fatal(err)
	}
	got, _ := d.Get("service_needs.referral_concern")
	if diff := cmp.Diff([]string{"Anxiety", "Sleep"}, got); diff != "" {
		t.Errorf("Set (-want +got):\n%s", diff)
	}
	if err := d.Toggle("service_needs.referral_concern", "Anxiety"); err != nil {
		t.Fatal(err)
	}
	got, _ = d.Get("service_needs.referral_concern")
	if diff := cmp.Diff([]string{"Sleep"}, got); diff != "" {
		t.Errorf("Toggle (-want +got):\n%s", diff)
	}
	if err := d.Toggle("student_information.grade", "9"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("toggle on scalar should fail, got %v", err)
	}
	if err := d.Set("authorization_consent", "true"); err != nil || !bool(d.AuthorizationConsent) {
		t.Errorf("consent set failed: %v", err)
	}
	if err := d.Set("authorization_consent", "yes"); err == nil {
		t.Error("expected an unparseable consent value to be rejected")
	}
	if !IsMulti("demographics.ethnicity") || IsMulti("demographics.sex_at_birth") {
		t.Error("IsMulti mismatch")
	}
	if len(FieldPaths()) != len(fields) {
		t.Error("FieldPaths length mismatch")
	}
}

func TestDraft_Normalized(t *testing.T) {
	d := validDraft()
	d.StudentInformation.FirstName = " Ana "
	d.ServiceNeeds.ServiceCategory = []string{" Grief", "Grief", "  "}

	n := d.Normalized()
	if n.StudentInformation.FirstName != "Ana" {
		t.Errorf("first name = %q", n.StudentInformation.FirstName)
	}
	if diff := cmp.Diff([]string{"Grief"}, n.ServiceNeeds.ServiceCategory); diff != "" {
		t.Errorf("categories (-want +got):\n%s", diff)
	}
	if d.StudentInformation.FirstName != " Ana " || len(d.ServiceNeeds.ServiceCategory) != 3 {
		t.Error("Normalized modified the original draft")
	}
}
