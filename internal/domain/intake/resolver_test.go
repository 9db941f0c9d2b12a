package intake

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		draft *Draft
		want  Active
	}{
		{"nil draft", nil, Active{}},
		{"uninsured", validDraft(), Active{}},
		{"insured", insuredDraft(), Active{InsuranceDetails: true}},
		{"other service", func() *Draft {
			d := validDraft()
			d.ServiceNeeds.ServiceCategory = append(d.ServiceNeeds.ServiceCategory, OtherServiceCategory)
			return d
		}(), Active{ServiceCategoryOther: true}},
		{"other race", func() *Draft {
			d := validDraft()
			d.Demographics.Race = []string{OtherRace}
			return d
		}(), Active{RaceOther: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Resolve(tt.draft)); diff != "" {
				t.Errorf("Resolve (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve_FollowsEdits(t *testing.T) {
	d := validDraft()
	if err := d.Set("insurance_information.has_insurance", "yes"); err != nil {
		t.Fatal(err)
	}
	if !Resolve(d).InsuranceDetails {
		t.Fatal("expected insurance details active after answering yes")
	}
	if err := d.Toggle("service_needs.service_category", OtherServiceCategory); err != nil {
		t.Fatal(err)
	}
	if !Resolve(d).ServiceCategoryOther {
		t.Fatal("expected other text active after checking Other Service")
	}
	if err := d.Toggle("service_needs.service_category", OtherServiceCategory); err != nil {
		t.Fatal(err)
	}
	if Resolve(d).ServiceCategoryOther {
		t.Fatal("expected other text inactive after unchecking")
	}
}

func TestActive_Includes(t *testing.T) {
	a := Active{}
	for _, p := range []string{
		"insurance_information.insurance_company",
		"insurance_information.group_number",
		KeyCardFront,
		"service_needs.service_category_other",
		"demographics.race_other",
	} {
		if a.Includes(p) {
			t.Errorf("%s should be inactive", p)
		}
	}
	for _, p := range []string{"insurance_information.has_insurance", "demographics.race[1]", "student_information.first_name"} {
		if !a.Includes(p) {
			t.Errorf("%s should always be active", p)
		}
	}
}

func TestActive_Inactive(t *testing.T) {
	got := Active{InsuranceDetails: true}.Inactive()
	want := []string{"service_needs.service_category_other", "demographics.race_other"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Inactive (-want +got):\n%s", diff)
	}
	if n := len(Active{}.Inactive()); n != 9 {
		t.Errorf("expected 9 inactive paths when nothing is enabled, got %d", n)
	}
}
