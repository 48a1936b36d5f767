package workflow

// Action represents a role-specific request that may move an application between states
type Action string

const (
	ActionSubmit         Action = "submit"
	ActionBeginReview    Action = "begin_review"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionRequestPayment Action = "request_payment"
	ActionRecordPayment  Action = "record_payment"
	ActionVerifyPayment  Action = "verify_payment"
	ActionIssuePermit    Action = "issue_permit"
)

var validActions = map[Action]bool{
	ActionSubmit:         true,
	ActionBeginReview:    true,
	ActionApprove:        true,
	ActionReject:         true,
	ActionRequestPayment: true,
	ActionRecordPayment:  true,
	ActionVerifyPayment:  true,
	ActionIssuePermit:    true,
}

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}

// IsValid returns true if the action is recognized
func (a Action) IsValid() bool {
	return validActions[a]
}
