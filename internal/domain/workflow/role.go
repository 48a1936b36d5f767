package workflow

// Role identifies the kind of actor invoking an action
type Role string

const (
	RoleApplicant Role = "applicant"
	RoleStaff     Role = "staff"
	RoleTreasurer Role = "treasurer"
	RoleAdmin     Role = "admin"
	RoleSystem    Role = "system"
)

// IsValid returns true if the role is known
func (r Role) IsValid() bool {
	switch r {
	case RoleApplicant, RoleStaff, RoleTreasurer, RoleAdmin, RoleSystem:
		return true
	default:
		return false
	}
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}
