// Package security provides JWT token utilities
package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// AdminTokenType marks tokens issued by the admin login.
const AdminTokenType = "admin_auth"

// ValidateJWT validates a JWT token and returns the claims
func ValidateJWT(tokenString, jwtSecret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// GenerateAdminToken signs an admin token for role, valid for ttl from now.
func GenerateAdminToken(role, jwtSecret string, ttl time.Duration, now time.Time) (string, error) {
	if jwtSecret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	claims := jwt.MapClaims{
		"role": role,
		"type": AdminTokenType,
		"jti":  GenerateULID(),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

// AdminRoleFromClaims returns the role of an admin token, or "" when the
// claims do not describe one.
func AdminRoleFromClaims(claims jwt.MapClaims) string {
	if typ, _ := claims["type"].(string); typ != AdminTokenType {
		return ""
	}
	role, _ := claims["role"].(string)
	return role
}
