package rbac

// Role names carried in service tokens. Changing one invalidates every token
// already issued with it.
const (
	RoleAdmin    = "admin"
	RolePayments = "payments" // checkout backend creating trials
	RoleSupport  = "support"  // read-only trial lookup
)

// Roles lists every role a token may carry.
var Roles = []string{RoleAdmin, RolePayments, RoleSupport}

func IsKnownRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}
