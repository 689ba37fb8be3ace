package rbac

// Role names. Keep these stable; they are part of the auth contract.
const (
	RoleMerchant = "merchant"
	RoleAdmin    = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
