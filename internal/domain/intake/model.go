package intake

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ServiceRequestType says whether services should start now or later.
type ServiceRequestType string

const (
	RequestStartNow    ServiceRequestType = "start_now"
	RequestOptInFuture ServiceRequestType = "opt_in_future"
)

// YesNo is the wire representation of boolean-like answers. The upstream API
// expects the literal strings "yes" and "no".
type YesNo string

const (
	Yes YesNo = "yes"
	No  YesNo = "no"
)

// Severity is the parent's assessment of the concern.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Status is the processing status assigned by the server.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusActive    Status = "active"
	StatusSubmitted Status = "submitted"
)

var validStatuses = map[Status]bool{
	StatusPending: true, StatusProcessed: true, StatusActive: true, StatusSubmitted: true,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool { return validStatuses[s] }

// Checkbox values that enable a free-text companion field.
const (
	OtherServiceCategory = "Other Service"
	OtherRace            = "Other (please specify)"
)

// StudentInformation identifies the student.
type StudentInformation struct {
	FirstName   string `json:"first_name" yaml:"first_name" validate:"required,plaintext"`
	LastName    string `json:"last_name" yaml:"last_name" validate:"required,plaintext"`
	Grade       string `json:"grade" yaml:"grade" validate:"required,plaintext"`
	School      string `json:"school" yaml:"school" validate:"required,plaintext"`
	DateOfBirth string `json:"date_of_birth" yaml:"date_of_birth" validate:"required,datetime=2006-01-02"`
	StudentID   string `json:"student_id" yaml:"student_id" validate:"required,plaintext"`
}

// ParentGuardianContact is who the services team calls back.
type ParentGuardianContact struct {
	Name  string `json:"name" yaml:"name" validate:"required,plaintext"`
	Email string `json:"email" yaml:"email" validate:"required,email"`
	Phone string `json:"phone" yaml:"phone" validate:"required,min=10"`
}

// ServiceNeeds describes what help is being requested.
type ServiceNeeds struct {
	ServiceCategory      []string `json:"service_category" yaml:"service_category" validate:"min=1,dive,required,plaintext"`
	ServiceCategoryOther string   `json:"service_category_other,omitempty" yaml:"service_category_other,omitempty" validate:"omitempty,plaintext"`
	SeverityOfConcern    Severity `json:"severity_of_concern" yaml:"severity_of_concern" validate:"required,oneof=mild moderate severe"`
	TypeOfServiceNeeded  []string `json:"type_of_service_needed" yaml:"type_of_service_needed" validate:"min=1,dive,required,plaintext"`
	FamilyResources      []string `json:"family_resources,omitempty" yaml:"family_resources,omitempty" validate:"omitempty,dive,required,plaintext"`
	ReferralConcern      []string `json:"referral_concern,omitempty" yaml:"referral_concern,omitempty" validate:"omitempty,dive,required,plaintext"`
}

// Demographics is optional in its entirety.
type Demographics struct {
	SexAtBirth string   `json:"sex_at_birth,omitempty" yaml:"sex_at_birth,omitempty" validate:"omitempty,plaintext"`
	Race       []string `json:"race,omitempty" yaml:"race,omitempty" validate:"omitempty,dive,required,plaintext"`
	RaceOther  string   `json:"race_other,omitempty" yaml:"race_other,omitempty" validate:"omitempty,plaintext"`
	Ethnicity  []string `json:"ethnicity,omitempty" yaml:"ethnicity,omitempty" validate:"omitempty,dive,required,plaintext"`
}

// IsZero reports whether no demographic answer was given.
func (d Demographics) IsZero() bool {
	return d.SexAtBirth == "" && len(d.Race) == 0 && d.RaceOther == "" && len(d.Ethnicity) == 0
}

// Insurance is either NoInsurance or HasInsurance. A validated IntakeForm
// never holds an insured student without the required policy details.
type Insurance interface {
	HasInsurance() YesNo
}

// NoInsurance is the uninsured branch.
type NoInsurance struct{}

func (NoInsurance) HasInsurance() YesNo { return No }

// Insured carries the policy details required when the student has insurance.
type Insured struct {
	InsuranceCompany      string
	PolicyholderName      string
	MemberID              string
	RelationshipToStudent string
	GroupNumber           string
	CardFront             *Attachment
	CardBack              *Attachment
}

func (Insured) HasInsurance() YesNo { return Yes }

// IntakeForm is a validated intake submission. Build one with
// Validator.Validate; the zero value is not meaningful.
type IntakeForm struct {
	Student                StudentInformation
	Contact                ParentGuardianContact
	RequestType            ServiceRequestType
	Insurance              Insurance
	Needs                  ServiceNeeds
	Demographics           *Demographics
	ImmediateSafetyConcern YesNo
	AuthorizationConsent   bool
}

// SubmitResponse is returned by the create endpoint.
type SubmitResponse struct {
	StudentUUID uuid.UUID `json:"student_uuid"`
	Message     string    `json:"message"`
	Status      Status    `json:"status"`
}

// StatusRecord is the public, PHI-free view of a submission.
type StatusRecord struct {
	StudentUUID   uuid.UUID  `json:"student_uuid"`
	Status        Status     `json:"status"`
	SubmittedDate Timestamp  `json:"submitted_date"`
	ProcessedDate *Timestamp `json:"processed_date,omitempty"`
}

// Timestamp accepts the date formats the API is known to emit: RFC 3339,
// naive ISO 8601 date-times and plain dates.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses s using the accepted layouts.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}
