package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nasmusic-ai/permit-pro/internal/domain/workflow"
)

var submissionValidator = validator.New(validator.WithRequiredStructEnabled())

// Application represents one business permit request
type Application struct {
	ID              string         `json:"id"`
	ReferenceNumber string         `json:"reference_number"`
	ApplicantID     string         `json:"applicant_id"`
	Status          workflow.State `json:"status"`
	BusinessInfo    BusinessInfo   `json:"business_info"`
	OwnerInfo       OwnerInfo      `json:"owner_info"`
	FeeExempt       bool           `json:"fee_exempt"`
	Notes           string         `json:"notes,omitempty"`
	PermitID        string         `json:"permit_id,omitempty"`
	SubmittedAt     *time.Time     `json:"submitted_at,omitempty"`
	ReviewedAt      *time.Time     `json:"reviewed_at,omitempty"`
	ReviewedBy      string         `json:"reviewed_by,omitempty"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	ApprovedBy      string         `json:"approved_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// BusinessInfo is the applicant-provided business snapshot
type BusinessInfo struct {
	BusinessName       string  `json:"business_name" validate:"required"`
	BusinessType       string  `json:"business_type" validate:"required"`
	TradeName          string  `json:"trade_name,omitempty"`
	RegistrationNumber string  `json:"registration_number,omitempty"`
	TINNumber          string  `json:"tin_number,omitempty"`
	VATNumber          string  `json:"vat_number,omitempty"`
	BusinessAddress    string  `json:"business_address" validate:"required"`
	Barangay           string  `json:"barangay" validate:"required"`
	City               string  `json:"city" validate:"required"`
	Province           string  `json:"province" validate:"required"`
	ZipCode            string  `json:"zip_code" validate:"required"`
	BusinessPhone      string  `json:"business_phone" validate:"required"`
	BusinessEmail      string  `json:"business_email" validate:"required,email"`
	BusinessArea       float64 `json:"business_area" validate:"gte=0"`
	TotalFloorArea     float64 `json:"total_floor_area" validate:"gte=0"`
	NumberOfEmployees  int     `json:"number_of_employees" validate:"gte=0"`
	DateEstablished    string  `json:"date_established,omitempty"`
}

// OwnerInfo is the applicant-provided owner snapshot
type OwnerInfo struct {
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	MiddleName  string `json:"middle_name,omitempty"`
	Suffix      string `json:"suffix,omitempty"`
	DateOfBirth string `json:"date_of_birth" validate:"required"`
	Gender      string `json:"gender" validate:"required,oneof=male female other"`
	Nationality string `json:"nationality" validate:"required"`
	CivilStatus string `json:"civil_status" validate:"required"`
	HomeAddress string `json:"home_address" validate:"required"`
	Barangay    string `json:"barangay" validate:"required"`
	City        string `json:"city" validate:"required"`
	Province    string `json:"province" validate:"required"`
	ZipCode     string `json:"zip_code" validate:"required"`
	Phone       string `json:"phone" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	IDType      string `json:"id_type" validate:"required"`
	IDNumber    string `json:"id_number" validate:"required"`
}

// FullName returns "first last", the form printed on permits
func (o OwnerInfo) FullName() string {
	return strings.TrimSpace(o.FirstName + " " + o.LastName)
}

// ValidateForSubmission checks that business and owner info are complete
func (a *Application) ValidateForSubmission() error {
	if err := submissionValidator.Struct(a.BusinessInfo); err != nil {
		return fmt.Errorf("%w: business info: %s", workflow.ErrValidationFailed, describe(err))
	}
	if err := submissionValidator.Struct(a.OwnerInfo); err != nil {
		return fmt.Errorf("%w: owner info: %s", workflow.ErrValidationFailed, describe(err))
	}
	return nil
}

// Clone returns a deep copy so a transition can be discarded without touching the original
func (a *Application) Clone() *Application {
	c := *a
	c.SubmittedAt = cloneTime(a.SubmittedAt)
	c.ReviewedAt = cloneTime(a.ReviewedAt)
	c.ApprovedAt = cloneTime(a.ApprovedAt)
	return &c
}

// IsOwnedBy reports whether userID created the application
func (a *Application) IsOwnedBy(userID string) bool {
	return userID != "" && a.ApplicantID == userID
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return strings.Join(fields, ", ")
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
