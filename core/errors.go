package core

import "errors"

var (
	ErrTokenNotFound        = errors.New("token not found")
	ErrTokenExpired         = errors.New("token has expired")
	ErrGenerationFailed     = errors.New("token generation failed")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrMalformedCredentials = errors.New("malformed credentials")
	ErrIntrospectionFailed  = errors.New("access token introspection failed")
	ErrIdentityNotFound     = errors.New("identity not found")
	ErrCollaboratorPanic    = errors.New("collaborator panicked")
)
