package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DeviceClaims are the JWT claims carried by a device token
type DeviceClaims struct {
	InstanceID string `json:"instanceId"`
	jwt.RegisteredClaims
}

// CreateDeviceToken signs an HS256 token identifying this agent
// instance to the remote API and the local API alike.
func CreateDeviceToken(secret, instanceID string, ttl time.Duration) (string, error) {
	claims := DeviceClaims{
		InstanceID: instanceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			Subject:   instanceID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and verifies a device token
func ValidateToken(tokenString, secret string) (*DeviceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*DeviceClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
