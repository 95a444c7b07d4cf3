package main

import (
	"auditgate/internal/jwttoken"
	"auditgate/internal/platform/middleware"
)

// jwtValidatorAdapter narrows the JWT service to the claims shape the auth
// middleware consumes.
type jwtValidatorAdapter struct {
	service *jwttoken.JWTService
}

func (a jwtValidatorAdapter) ValidateToken(tokenString string) (*middleware.TokenClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.TokenClaims{
		UserID:   claims.UserID,
		APIKeyID: claims.APIKeyID,
	}, nil
}
