package api

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the fields of the access token the client cares about.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// TokenClaims reads the access token's claims without verifying the
// signature. The client never holds the signing key; this is for display only.
func TokenClaims(token string) (*Claims, error) {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &rc); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}

	c := &Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, nil
}
