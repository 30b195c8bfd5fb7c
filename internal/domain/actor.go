package domain

// Role names resolved by the external user directory. The API layer resolves
// an actor's role set before invoking any core operation.
const (
	RolePreparer = "PREPARER"
	RoleApprover = "APPROVER"
	RoleAdmin    = "ADMIN"
)

// Actor is the authenticated caller of a core operation.
type Actor struct {
	ID    string
	Roles []string
}

// HasRole reports whether the actor holds the given role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
