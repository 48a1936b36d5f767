package event

// Type identifies the type of domain event
type Type string

const (
	TypeApplicationCreated Type = "application.created"
	TypeStatusChanged      Type = "application.status_changed"
	TypePaymentRecorded    Type = "payment.recorded"
	TypePaymentConfirmed   Type = "payment.confirmed"
	TypePaymentVerified    Type = "payment.verified"
	TypePermitIssued       Type = "permit.issued"
	TypePermitRevoked      Type = "permit.revoked"
	TypeNotificationQueued Type = "notification.queued"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeApplicationCreated,
		TypeStatusChanged,
		TypePaymentRecorded,
		TypePaymentConfirmed,
		TypePaymentVerified,
		TypePermitIssued,
		TypePermitRevoked,
		TypeNotificationQueued:
		return true
	default:
		return false
	}
}
