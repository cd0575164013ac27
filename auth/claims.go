package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT payload for encart sessions. It embeds
// jwt.RegisteredClaims for the standard fields (exp, iat) and adds
// the identity fields the admin surface needs.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Email    string `json:"email,omitempty"`
}

// IsAdmin reports whether the claims carry the admin role.
func (c *Claims) IsAdmin() bool { return c.Role == "admin" }
