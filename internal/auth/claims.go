package auth

import "github.com/golang-jwt/jwt/v5"

// Roles for the operator API. Admin additionally unlocks leg creation and
// hangup; plain operators may inspect channels and run pickups.
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

func IsValidRole(role string) bool {
	return role == RoleOperator || role == RoleAdmin
}

// Claims are the only supported JWT claims shape for this service.
type Claims struct {
	jwt.RegisteredClaims

	OperatorID string `json:"operator_id"`
	Role       string `json:"role"`
}
