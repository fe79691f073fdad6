package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are minted by the identity service; this backend only validates them.
type Claims struct {
	UserID string `json:"uid"`
	Handle string `json:"handle"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// SignJWT issues a token with the same claim shape the identity service uses.
// The backend itself never calls this outside of tests and local tooling.
func SignJWT(secret, userID, handle, role string, expiresMin int) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Handle: handle,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expiresMin) * time.Minute)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}
