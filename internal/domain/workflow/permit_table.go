package workflow

// feeExempt lets an approved application skip the payment stage
func feeExempt(in Input) bool {
	return in.FeeExempt
}

// PermitTable builds the business permit transition table
func PermitTable() *Table {
	b := NewBuilder()

	b.Configure(StateDraft).
		PermitOwner(ActionSubmit, StateSubmitted)

	b.Configure(StateSubmitted).
		Permit(ActionBeginReview, StateUnderReview, RoleStaff).
		Permit(ActionApprove, StateApproved, RoleStaff).
		Permit(ActionReject, StateRejected, RoleStaff)

	b.Configure(StateUnderReview).
		Permit(ActionApprove, StateApproved, RoleStaff).
		Permit(ActionReject, StateRejected, RoleStaff).
		Permit(ActionRequestPayment, StatePendingPayment, RoleStaff)

	// record_payment keeps the status and spawns a Payment
	b.Configure(StatePendingPayment).
		PermitOwner(ActionRecordPayment, StatePendingPayment).
		Permit(ActionVerifyPayment, StatePaymentVerified, RoleTreasurer)

	b.Configure(StatePaymentVerified).
		Permit(ActionIssuePermit, StatePermitIssued, RoleStaff, RoleSystem)

	b.Configure(StateApproved).
		PermitIf(ActionIssuePermit, StatePermitIssued, feeExempt, RoleStaff, RoleSystem)

	return b.Build()
}
