package workflow

import (
	"errors"
	"strings"
	"testing"
)

func TestPermitTable_Rows(t *testing.T) {
	table := PermitTable()

	tests := []struct {
		from    State
		action  Action
		role    Role
		owner   bool
		exempt  bool
		want    State
		wantErr error
	}{
		{StateDraft, ActionSubmit, RoleApplicant, true, false, StateSubmitted, nil},
		{StateSubmitted, ActionBeginReview, RoleStaff, false, false, StateUnderReview, nil},
		{StateSubmitted, ActionApprove, RoleStaff, false, false, StateApproved, nil},
		{StateSubmitted, ActionReject, RoleStaff, false, false, StateRejected, nil},
		{StateUnderReview, ActionApprove, RoleStaff, false, false, StateApproved, nil},
		{StateUnderReview, ActionReject, RoleStaff, false, false, StateRejected, nil},
		{StateUnderReview, ActionRequestPayment, RoleStaff, false, false, StatePendingPayment, nil},
		{StatePendingPayment, ActionRecordPayment, RoleApplicant, true, false, StatePendingPayment, nil},
		{StatePendingPayment, ActionVerifyPayment, RoleTreasurer, false, false, StatePaymentVerified, nil},
		{StatePaymentVerified, ActionIssuePermit, RoleStaff, false, false, StatePermitIssued, nil},
		{StatePaymentVerified, ActionIssuePermit, RoleSystem, false, false, StatePermitIssued, nil},
		{StateApproved, ActionIssuePermit, RoleSystem, false, true, StatePermitIssued, nil},

		{StateApproved, ActionIssuePermit, RoleStaff, false, false, "", ErrInvalidTransition},
		{StateApproved, ActionReject, RoleStaff, false, false, "", ErrInvalidTransition},
		{StateSubmitted, ActionRequestPayment, RoleStaff, false, false, "", ErrInvalidTransition},
		{StateRejected, ActionApprove, RoleStaff, false, false, "", ErrInvalidTransition},
		{StatePermitIssued, ActionIssuePermit, RoleStaff, false, false, "", ErrInvalidTransition},
		{StatePendingPayment, ActionRecordPayment, RoleApplicant, false, false, "", ErrForbidden},
		{StatePendingPayment, ActionVerifyPayment, RoleStaff, false, false, "", ErrForbidden},
		{StateDraft, ActionSubmit, RoleAdmin, false, false, "", ErrForbidden},
		{StatePaymentVerified, ActionIssuePermit, RoleTreasurer, false, false, "", ErrForbidden},
	}

	for _, tt := range tests {
		name := string(tt.from) + "/" + string(tt.action) + "/" + string(tt.role)
		t.Run(name, func(t *testing.T) {
			got, err := table.Evaluate(Input{
				Status: tt.from, Action: tt.action, Role: tt.role,
				IsOwner: tt.owner, FeeExempt: tt.exempt,
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Evaluate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Evaluate() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPermitTable_ApplicantApproveAlwaysForbidden(t *testing.T) {
	table := PermitTable()
	for _, status := range AllStates() {
		_, err := table.Evaluate(Input{Status: status, Action: ActionApprove, Role: RoleApplicant, IsOwner: true})
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("approve from %s as applicant: error = %v, want %v", status, err, ErrForbidden)
		}
	}
}

// Every edge either stays put or moves to a status not yet visited on any path from draft
func TestPermitTable_EdgesNeverRevisit(t *testing.T) {
	table := PermitTable()
	rank := make(map[State]int)
	for i, s := range AllStates() {
		rank[s] = i
	}

	for from, byAction := range table.edges {
		for action, list := range byAction {
			for _, e := range list {
				if e.toState == from && action == ActionRecordPayment {
					continue
				}
				if rank[e.toState] <= rank[from] {
					t.Errorf("%s --%s--> %s goes backwards", from, action, e.toState)
				}
			}
		}
	}
}

func TestPermitTable_TerminalStatesHaveNoUnguardedExits(t *testing.T) {
	table := PermitTable()
	for _, s := range []State{StateRejected, StatePermitIssued} {
		for _, role := range []Role{RoleApplicant, RoleStaff, RoleTreasurer, RoleAdmin, RoleSystem} {
			if got := table.PermittedActions(Input{Status: s, Role: role, IsOwner: true, FeeExempt: true}); len(got) != 0 {
				t.Errorf("%s as %s: PermittedActions() = %v, want none", s, role, got)
			}
		}
	}
}

func TestNoticeFor(t *testing.T) {
	data := NoticeData{ReferenceNumber: "BP-2026-0007", Notes: "incomplete documents", Amount: "5150.00"}

	tests := []struct {
		action   Action
		severity string
		contains string
	}{
		{ActionApprove, NoticeSuccess, "BP-2026-0007 has been approved"},
		{ActionReject, NoticeError, "incomplete documents"},
		{ActionRequestPayment, NoticeWarning, "complete payment"},
		{ActionVerifyPayment, NoticeSuccess, "₱5150.00"},
	}
	for _, tt := range tests {
		n, ok := NoticeFor(tt.action)
		if !ok {
			t.Fatalf("NoticeFor(%s) missing", tt.action)
		}
		if n.Severity != tt.severity {
			t.Errorf("NoticeFor(%s).Severity = %s, want %s", tt.action, n.Severity, tt.severity)
		}
		if msg := n.Message(data); !strings.Contains(msg, tt.contains) {
			t.Errorf("NoticeFor(%s).Message() = %q, want it to contain %q", tt.action, msg, tt.contains)
		}
	}

	for _, action := range []Action{ActionSubmit, ActionBeginReview, ActionRecordPayment, ActionIssuePermit} {
		if _, ok := NoticeFor(action); ok {
			t.Errorf("NoticeFor(%s) should not notify", action)
		}
	}
}
