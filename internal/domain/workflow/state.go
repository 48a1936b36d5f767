package workflow

// State represents an application status in the permit lifecycle
type State string

const (
	StateDraft           State = "draft"
	StateSubmitted       State = "submitted"
	StateUnderReview     State = "under_review"
	StatePendingPayment  State = "pending_payment"
	StatePaymentVerified State = "payment_verified"
	StateApproved        State = "approved"
	StateRejected        State = "rejected"
	StatePermitIssued    State = "permit_issued"
)

var validStates = map[State]bool{
	StateDraft:           true,
	StateSubmitted:       true,
	StateUnderReview:     true,
	StatePendingPayment:  true,
	StatePaymentVerified: true,
	StateApproved:        true,
	StateRejected:        true,
	StatePermitIssued:    true,
}

// approved only leaves through the fee-exempt issuance edge
var terminalStates = map[State]bool{
	StateApproved:     true,
	StateRejected:     true,
	StatePermitIssued: true,
}

// AllStates returns every status in lifecycle order
func AllStates() []State {
	return []State{
		StateDraft,
		StateSubmitted,
		StateUnderReview,
		StatePendingPayment,
		StatePaymentVerified,
		StateApproved,
		StateRejected,
		StatePermitIssued,
	}
}

// IsTerminal returns true if the state allows no further forward progress
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid application status
func (s State) IsValid() bool {
	return validStates[s]
}
