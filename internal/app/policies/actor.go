package policies

type Role string

const (
	RoleDevotee  Role = "devotee"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

// Actor is whoever triggers an operation.
type Actor struct {
	ID   string
	Role Role
}

// SystemActor is used by schedulers and sweepers.
var SystemActor = Actor{ID: "system", Role: RoleSystem}

func (a Actor) Privileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

func ParseRole(value string) Role {
	switch Role(value) {
	case RoleProvider, RoleAdmin:
		return Role(value)
	}
	return RoleDevotee
}
