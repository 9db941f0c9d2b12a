package intake

import "strings"

// Active describes which conditional fields are currently in play for a
// draft. Inactive fields are hidden, are not validated and are never sent.
type Active struct {
	InsuranceDetails     bool `json:"insurance_details"`
	ServiceCategoryOther bool `json:"service_category_other"`
	RaceOther            bool `json:"race_other"`
}

var insuranceDetailPaths = map[string]bool{
	"insurance_information.insurance_company":       true,
	"insurance_information.policyholder_name":       true,
	"insurance_information.relationship_to_student": true,
	"insurance_information.member_id":               true,
	"insurance_information.group_number":            true,
	KeyCardFront:                                    true,
	KeyCardBack:                                     true,
}

// Resolve computes the active conditional fields from the current draft.
// It holds no state; call it again after every edit.
func Resolve(d *Draft) Active {
	if d == nil {
		return Active{}
	}
	return Active{
		InsuranceDetails:     d.InsuranceInformation.HasInsurance == Yes,
		ServiceCategoryOther: contains(d.ServiceNeeds.ServiceCategory, OtherServiceCategory),
		RaceOther:            contains(d.Demographics.Race, OtherRace),
	}
}

// Includes reports whether the field at path is active. Indexed paths such
// as "demographics.race[1]" resolve to their base field.
func (a Active) Includes(path string) bool {
	path = basePath(path)
	switch {
	case insuranceDetailPaths[path]:
		return a.InsuranceDetails
	case path == "service_needs.service_category_other":
		return a.ServiceCategoryOther
	case path == "demographics.race_other":
		return a.RaceOther
	}
	return true
}

// Inactive lists the conditional paths that are currently hidden, in
// serialization order.
func (a Active) Inactive() []string {
	var out []string
	for _, f := range fields {
		if !a.Includes(f.path) {
			out = append(out, f.path)
		}
	}
	if !a.InsuranceDetails {
		out = append(out, KeyCardFront, KeyCardBack)
	}
	return out
}

func basePath(path string) string {
	if i := strings.IndexByte(path, '['); i >= 0 {
		return path[:i]
	}
	return path
}
