package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/saffronhouse/orders-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a staff token.
type AccessTokenPayload struct {
	StaffID string
	Role    enums.StaffRole
}

// AccessTokenClaims is the typed JWT presented by restaurant staff. The staff
// id travels in the registered subject claim.
type AccessTokenClaims struct {
	Role enums.StaffRole `json:"role"`
	jwt.RegisteredClaims
}

// StaffID returns the subject of the token.
func (c *AccessTokenClaims) StaffID() string {
	return c.Subject
}
