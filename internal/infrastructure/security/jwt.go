// Package security provides JWT token utilities
package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// InspectToken parses a bearer token WITHOUT verifying its signature. The
// backend collaborator owns verification; the client only needs claims for
// expiry scheduling and user identity hints.
func InspectToken(tokenString string) (jwt.MapClaims, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// TokenExpiry returns the exp claim of a token, or zero time when absent.
func TokenExpiry(tokenString string) (time.Time, error) {
	claims, err := InspectToken(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, nil
	}
	return time.Unix(int64(exp), 0).UTC(), nil
}

// TokenSubject returns the sub claim of a token, or empty when absent.
func TokenSubject(tokenString string) string {
	claims, err := InspectToken(tokenString)
	if err != nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}
