package workflow

import "fmt"

// Notice severities match the portal's notification styles
const (
	NoticeSuccess = "success"
	NoticeWarning = "warning"
	NoticeError   = "error"
)

// NoticeData is what a template may mention
type NoticeData struct {
	ReferenceNumber string
	Notes           string
	Amount          string
}

// Notice is the message an action sends to the applicant
type Notice struct {
	Title    string
	Severity string
	render   func(NoticeData) string
}

// Message renders the notice body
func (n Notice) Message(d NoticeData) string {
	return n.render(d)
}

var notices = map[Action]Notice{
	ActionApprove: {
		Title:    "Application Approved",
		Severity: NoticeSuccess,
		render: func(d NoticeData) string {
			return fmt.Sprintf("Your application %s has been approved.", d.ReferenceNumber)
		},
	},
	ActionReject: {
		Title:    "Application Rejected",
		Severity: NoticeError,
		render: func(d NoticeData) string {
			msg := fmt.Sprintf("Your application %s has been rejected.", d.ReferenceNumber)
			if d.Notes != "" {
				msg += " Reason: " + d.Notes
			}
			return msg
		},
	},
	ActionRequestPayment: {
		Title:    "Payment Required",
		Severity: NoticeWarning,
		render: func(d NoticeData) string {
			return fmt.Sprintf("Please complete payment for your application %s.", d.ReferenceNumber)
		},
	},
	ActionVerifyPayment: {
		Title:    "Payment Verified",
		Severity: NoticeSuccess,
		render: func(d NoticeData) string {
			return fmt.Sprintf("Your payment of ₱%s for %s has been verified.", d.Amount, d.ReferenceNumber)
		},
	},
}

// NoticeFor returns the notice an action sends, if any. At most one per action.
func NoticeFor(action Action) (Notice, bool) {
	n, ok := notices[action]
	return n, ok
}
