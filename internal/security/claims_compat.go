package security

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// legacyIDClaims lists the claim names older token formats used for the user
// id, in precedence order. New tokens only ever carry "userId"; this shim is
// consulted when that claim comes up empty and stays out of the main
// verification path.
var legacyIDClaims = []string{"userId", "user_id", "id", "_id", "sub"}

// LegacyUserID re-reads an already-verified token as a generic claim map and
// returns the first non-empty user id under a historical claim name.
func LegacyUserID(tokenStr string, secret string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", ErrTokenInvalid
	}

	for _, name := range legacyIDClaims {
		if v, ok := claims[name].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", nil
}
