package entity

import "time"

// StatusHistory represents the audit trail of an application
type StatusHistory struct {
	ID             int64     `json:"id"`
	ApplicationID  string    `json:"application_id"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Action         string    `json:"action"`
	ActorID        string    `json:"actor_id"`
	ActorRole      string    `json:"actor_role"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// DashboardStats summarizes the application pipeline
type DashboardStats struct {
	TotalApplications int            `json:"total_applications"`
	ByStatus          map[string]int `json:"by_status"`
	PendingReview     int            `json:"pending_review"`
	PendingPayment    int            `json:"pending_payment"`
	Approved          int            `json:"approved"`
	Rejected          int            `json:"rejected"`
	PermitsIssued     int            `json:"permits_issued"`
	TotalRevenue      string         `json:"total_revenue"`
}
