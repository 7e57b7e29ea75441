package middleware

import (
	"testing"

	"github.com/chesslab/analysisd/internal/config"
)

func TestConnectionLimiterAllowsBurstThenBlocks(t *testing.T) {
	l := NewConnectionLimiter(config.RateLimitConfig{ConnectionsPerMinutePerIP: 3})
	for i := 0; i < 3; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("expected burst request %d to be allowed", i)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("expected 4th immediate request to be rate limited")
	}
}

func TestConnectionLimiterIsPerAddress(t *testing.T) {
	l := NewConnectionLimiter(config.RateLimitConfig{ConnectionsPerMinutePerIP: 1})
	if !l.Allow("1.1.1.1") {
		t.Fatal("first request from 1.1.1.1 should be allowed")
	}
	if !l.Allow("2.2.2.2") {
		t.Fatal("first request from a different address should be allowed independently")
	}
}
