// Package authcheck defines the auth verifier boundary (spec §6): a pure
// function from an opaque client-supplied token to a verified identity or
// failure. Token issuance, storage and decoding are external collaborators
// per spec §1 — this package owns only the interface the session dispatcher
// calls against, plus a minimal stand-in implementation for environments
// that have no external identity provider wired up yet.
package authcheck

import (
	"errors"

	"github.com/chesslab/analysisd/internal/models"
)

// ErrInvalidToken is returned by a Verifier when the token does not map to
// a known identity. The session dispatcher treats this as auth_failed.
var ErrInvalidToken = errors.New("authcheck: invalid token")

// Verifier is the external auth collaborator's interface (spec §6:
// "verifyToken(opaqueString) -> {userId, email} | failure"). The server
// never stores or decodes the token itself; it only asks a Verifier.
type Verifier interface {
	VerifyToken(token string) (models.UserInfo, error)
}

// StaticVerifier is a minimal stand-in Verifier for local development and
// tests, backed by a fixed token->user table. It is not a substitute for a
// real identity provider; production deployments are expected to supply
// their own Verifier grounded on whatever service issues tokens.
type StaticVerifier struct {
	users map[string]models.UserInfo
}

// NewStaticVerifier builds a StaticVerifier from a token->user table.
func NewStaticVerifier(users map[string]models.UserInfo) *StaticVerifier {
	if users == nil {
		users = map[string]models.UserInfo{}
	}
	return &StaticVerifier{users: users}
}

func (v *StaticVerifier) VerifyToken(token string) (models.UserInfo, error) {
	if token == "" {
		return models.UserInfo{}, ErrInvalidToken
	}
	user, ok := v.users[token]
	if !ok {
		return models.UserInfo{}, ErrInvalidToken
	}
	return user, nil
}
