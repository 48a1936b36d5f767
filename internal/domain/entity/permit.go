package entity

import "time"

// Permit is the artifact issued for an approved and paid application
type Permit struct {
	ID              string     `json:"id"`
	ApplicationID   string     `json:"application_id"`
	PermitNumber    string     `json:"permit_number"`
	BusinessName    string     `json:"business_name"`
	OwnerName       string     `json:"owner_name"`
	BusinessAddress string     `json:"business_address"`
	IssueDate       time.Time  `json:"issue_date"`
	ExpiryDate      time.Time  `json:"expiry_date"`
	IsActive        bool       `json:"is_active"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
	ReminderSentAt  *time.Time `json:"reminder_sent_at,omitempty"`
}

// PermitExpiry returns the expiry date for a permit issued at issueDate
func PermitExpiry(issueDate time.Time) time.Time {
	return issueDate.AddDate(1, 0, 0)
}
