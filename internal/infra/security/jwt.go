package security

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sthaarwin/Dental-Smile-sub001/internal/app/identity"
)

// JWTVerifier validates bearer tokens issued by the account subsystem. The
// shared HS256 secret is the only coupling between the two services.
type JWTVerifier struct {
	Secret []byte
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verify implements identity.TokenVerifier.
func (v JWTVerifier) Verify(token string) (identity.Claims, error) {
	if token == "" {
		return identity.Claims{}, identity.ErrTokenRequired
	}
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return identity.Claims{}, fmt.Errorf("%w: %v", identity.ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return identity.Claims{}, identity.ErrInvalidToken
	}
	return identity.Claims{UserID: claims.Subject, Role: claims.Role}, nil
}
