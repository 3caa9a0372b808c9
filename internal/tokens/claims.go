package tokens

import "github.com/golang-jwt/jwt/v5"

// Class separates access tokens from refresh tokens. Each class is signed
// with its own secret.
type Class string

const (
	Access  Class = "access"
	Refresh Class = "refresh"
)

type Claims struct {
	Type Class `json:"typ"`
	jwt.RegisteredClaims
}
