package workflow

import (
	"fmt"
	"sort"
)

// Input is everything the table needs to decide a transition
type Input struct {
	Status    State
	Action    Action
	Role      Role
	IsOwner   bool
	FeeExempt bool
}

// Table is an immutable lookup of (status, action, role) to target status.
// It has no side effects and is safe for concurrent use.
type Table struct {
	edges       map[State]map[Action][]edge
	actionRoles map[Action]map[Role]bool
}

// Evaluate returns the target status for the input or the reason it is rejected.
// Role checks come before status checks so a role that may never perform the
// action always gets ErrForbidden.
func (t *Table) Evaluate(in Input) (State, error) {
	if !in.Action.IsValid() {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, in.Action)
	}

	if !t.actionRoles[in.Action][in.Role] {
		return "", fmt.Errorf("%w: role %s may not %s", ErrForbidden, in.Role, in.Action)
	}

	candidates := t.edges[in.Status][in.Action]
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, in.Action, in.Status)
	}

	var permitted []edge
	ownerDenied := false
	for _, e := range candidates {
		if !e.roles[in.Role] {
			continue
		}
		if e.ownerOnly && !in.IsOwner {
			ownerDenied = true
			continue
		}
		permitted = append(permitted, e)
	}

	if len(permitted) == 0 {
		if ownerDenied {
			return "", fmt.Errorf("%w: only the owning applicant may %s", ErrForbidden, in.Action)
		}
		return "", fmt.Errorf("%w: role %s may not %s from %s", ErrForbidden, in.Role, in.Action, in.Status)
	}

	for _, e := range permitted {
		if e.guard == nil || e.guard(in) {
			return e.toState, nil
		}
	}

	return "", fmt.Errorf("%w: guard rejected %s from %s", ErrInvalidTransition, in.Action, in.Status)
}

// Can reports whether Evaluate would succeed
func (t *Table) Can(in Input) bool {
	_, err := t.Evaluate(in)
	return err == nil
}

// PermittedActions lists the actions the actor may take from in.Status. in.Action is ignored.
func (t *Table) PermittedActions(in Input) []Action {
	byAction := t.edges[in.Status]
	actions := make([]Action, 0, len(byAction))

	for action := range byAction {
		probe := in
		probe.Action = action
		if t.Can(probe) {
			actions = append(actions, action)
		}
	}

	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// RolesFor returns the roles that may perform the action from at least one state
func (t *Table) RolesFor(action Action) []Role {
	roles := make([]Role, 0, len(t.actionRoles[action]))
	for role := range t.actionRoles[action] {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Authorize checks only the role half of the table
func (t *Table) Authorize(action Action, role Role) error {
	if !t.actionRoles[action][role] {
		return fmt.Errorf("%w: role %s may not %s", ErrForbidden, role, action)
	}
	return nil
}
