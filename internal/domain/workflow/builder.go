package workflow

import (
	"fmt"
)

// GuardFunc evaluates whether a transition should be allowed for the given input
type GuardFunc func(in Input) bool

// TableBuilder builds a transition table
type TableBuilder interface {
	// Configure returns a state configuration for the given source state
	Configure(state State) StateConfiguration

	// Build creates an immutable table from the configured transitions
	Build() *Table
}

// StateConfiguration configures transitions leaving a specific state
type StateConfiguration interface {
	// Permit allows the roles to move the application to toState with action
	Permit(action Action, toState State, roles ...Role) StateConfiguration

	// PermitIf is Permit with a guard condition
	PermitIf(action Action, toState State, guard GuardFunc, roles ...Role) StateConfiguration

	// PermitOwner allows only the applicant who owns the application
	PermitOwner(action Action, toState State) StateConfiguration
}

// edge represents one allowed transition
type edge struct {
	toState   State
	roles     map[Role]bool
	ownerOnly bool
	guard     GuardFunc
}

// stateConfig implements StateConfiguration
type stateConfig struct {
	fromState State
	edges     map[Action][]edge
}

// tableBuilder implements TableBuilder
type tableBuilder struct {
	configurations map[State]*stateConfig
}

// NewBuilder creates a new transition table builder
func NewBuilder() TableBuilder {
	return &tableBuilder{
		configurations: make(map[State]*stateConfig),
	}
}

// Configure returns a state configuration for the given state
func (b *tableBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			fromState: state,
			edges:     make(map[Action][]edge),
		}
		b.configurations[state] = config
	}

	return config
}

// Build creates the table. Later changes to the builder do not affect it.
func (b *tableBuilder) Build() *Table {
	edges := make(map[State]map[Action][]edge, len(b.configurations))
	actionRoles := make(map[Action]map[Role]bool)

	for state, config := range b.configurations {
		byAction := make(map[Action][]edge, len(config.edges))
		for action, list := range config.edges {
			byAction[action] = append([]edge{}, list...)

			if actionRoles[action] == nil {
				actionRoles[action] = make(map[Role]bool)
			}
			for _, e := range list {
				for role := range e.roles {
					actionRoles[action][role] = true
				}
			}
		}
		edges[state] = byAction
	}

	return &Table{
		edges:       edges,
		actionRoles: actionRoles,
	}
}

// Permit allows the roles to move the application to toState with action
func (c *stateConfig) Permit(action Action, toState State, roles ...Role) StateConfiguration {
	return c.PermitIf(action, toState, nil, roles...)
}

// PermitIf is Permit with a guard condition
func (c *stateConfig) PermitIf(action Action, toState State, guard GuardFunc, roles ...Role) StateConfiguration {
	c.add(action, toState, guard, false, roles)
	return c
}

// PermitOwner allows only the applicant who owns the application
func (c *stateConfig) PermitOwner(action Action, toState State) StateConfiguration {
	c.add(action, toState, nil, true, []Role{RoleApplicant})
	return c
}

func (c *stateConfig) add(action Action, toState State, guard GuardFunc, ownerOnly bool, roles []Role) {
	if !action.IsValid() {
		panic(fmt.Sprintf("invalid action: %s", action))
	}
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	if len(roles) == 0 {
		panic(fmt.Sprintf("no roles for %s from %s", action, c.fromState))
	}

	allowed := make(map[Role]bool, len(roles))
	for _, role := range roles {
		if !role.IsValid() {
			panic(fmt.Sprintf("invalid role: %s", role))
		}
		allowed[role] = true
	}

	c.edges[action] = append(c.edges[action], edge{
		toState:   toState,
		roles:     allowed,
		ownerOnly: ownerOnly,
		guard:     guard,
	})
}
