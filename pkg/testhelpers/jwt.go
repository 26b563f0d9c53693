// Package testhelpers provides containers and tokens for tests.
package testhelpers

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateTestJWT creates an unsigned token (alg: none) for use when
// verification is disabled. It carries sub, sid and preferred_username.
func GenerateTestJWT(sub, sessionID, username string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	payload := fmt.Sprintf(`{"sub":"%s"`, sub)
	if sessionID != "" {
		payload += fmt.Sprintf(`,"sid":"%s"`, sessionID)
	}
	if username != "" {
		payload += fmt.Sprintf(`,"preferred_username":"%s"`, username)
	}
	payload += "}"

	encodedPayload := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return fmt.Sprintf("%s.%s.", header, encodedPayload)
}

// GenerateTestJWTWithBearer returns the token with a "Bearer " prefix.
func GenerateTestJWTWithBearer(sub, sessionID, username string) string {
	return "Bearer " + GenerateTestJWT(sub, sessionID, username)
}

// GenerateHMACJWT signs an HS256 token with secret, valid for ttl.
func GenerateHMACJWT(secret, sub, sessionID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":                sub,
		"sid":                sessionID,
		"preferred_username": username,
		"iat":                now.Unix(),
		"exp":                now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
