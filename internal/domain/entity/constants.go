package entity

// Payment status constants
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
)

// Payment method constants
const (
	PaymentMethodCreditCard   = "credit_card"
	PaymentMethodDebitCard    = "debit_card"
	PaymentMethodGCash        = "gcash"
	PaymentMethodMaya         = "maya"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodOverCounter  = "over_counter"
)

var validPaymentMethods = map[string]bool{
	PaymentMethodCreditCard:   true,
	PaymentMethodDebitCard:    true,
	PaymentMethodGCash:        true,
	PaymentMethodMaya:         true,
	PaymentMethodBankTransfer: true,
	PaymentMethodOverCounter:  true,
}

// IsValidPaymentMethod reports whether method is accepted
func IsValidPaymentMethod(method string) bool {
	return validPaymentMethods[method]
}

// FeeTypeBusinessPermit is the only fee type collected by the workflow
const FeeTypeBusinessPermit = "business_permit"

// Notification severity constants
const (
	SeverityInfo    = "info"
	SeveritySuccess = "success"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Related kinds for notifications
const (
	RelatedApplication = "application"
	RelatedPayment     = "payment"
	RelatedPermit      = "permit"
)

// Sequence names used by the number allocator
const (
	SequenceApplications = "applications"
	SequencePermits      = "permits"
)
