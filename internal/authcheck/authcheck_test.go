package authcheck

import (
	"testing"

	"github.com/chesslab/analysisd/internal/models"
)

func TestStaticVerifierValidToken(t *testing.T) {
	v := NewStaticVerifier(map[string]models.UserInfo{
		"valid": {ID: "u1", Email: "a@b"},
	})
	user, err := v.VerifyToken("valid")
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if user.ID != "u1" || user.Email != "a@b" {
		t.Fatalf("user: %+v", user)
	}
}

func TestStaticVerifierUnknownToken(t *testing.T) {
	v := NewStaticVerifier(nil)
	if _, err := v.VerifyToken("nope"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestStaticVerifierEmptyToken(t *testing.T) {
	v := NewStaticVerifier(map[string]models.UserInfo{"": {ID: "u1"}})
	if _, err := v.VerifyToken(""); err != ErrInvalidToken {
		t.Fatalf("empty token must always fail, got %v", err)
	}
}
