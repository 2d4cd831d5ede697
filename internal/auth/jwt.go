// Package auth issues and verifies the bearer tokens that tie an intake
// session to a seller account.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/karsell/intake/internal/shared"
)

// Claims carries the registered claims plus the seller the token was
// issued for.
type Claims struct {
	jwt.RegisteredClaims
	SellerID string
}

func GenerateToken(sellerID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		SellerID: sellerID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func GetSellerIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", shared.ErrorTokenExpired
		}
		return "", shared.ErrorInvalidToken
	}

	if !token.Valid {
		return "", shared.ErrorInvalidToken
	}

	return claims.SellerID, nil
}

// SellerIDFromBearer extracts and verifies the token from an
// "Authorization: Bearer <token>" header value.
func SellerIDFromBearer(header string, secretKey []byte) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", shared.ErrorInvalidBearer
	}
	return GetSellerIDFromToken(strings.TrimPrefix(header, prefix), secretKey)
}
