package jwttoken

import (
	"pact/internal/platform/middleware"
)

// ValidatorAdapter bridges the token service to the middleware contract so
// the HTTP layer does not depend on this package's claim shape.
type ValidatorAdapter struct {
	service *Service
}

func NewValidatorAdapter(service *Service) *ValidatorAdapter {
	return &ValidatorAdapter{service: service}
}

func (a *ValidatorAdapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{
		Subject:  claims.Subject,
		ClientID: claims.ClientID,
	}, nil
}
