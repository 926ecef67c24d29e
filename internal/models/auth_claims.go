package models

import "github.com/golang-jwt/jwt/v5"

// PlatformClaims are the JWT claims the platform signs when invoking this
// connector. ServiceID names the calling platform component (scheduler,
// portal) for audit logs.
type PlatformClaims struct {
	ServiceID string `json:"serviceId"`
	jwt.RegisteredClaims
}
