package limiter

import (
	"testing"
	"time"
)

func TestAllowsUnderLimit(t *testing.T) {
	l := New(Limit{MaxAttempts: 5, Window: time.Minute, BanThreshold: 3, BanDuration: time.Minute})

	for i := 0; i < 5; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("attempt %d rejected under the limit", i+1)
		}
	}
}

func TestBlocksOverLimit(t *testing.T) {
	l := New(Limit{MaxAttempts: 2, Window: time.Minute, BanThreshold: 10, BanDuration: time.Minute})

	l.Allow("1.2.3.4")
	l.Allow("1.2.3.4")
	if l.Allow("1.2.3.4") {
		t.Fatal("expected third attempt to be rejected")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(Limit{MaxAttempts: 1, Window: time.Minute, BanThreshold: 10, BanDuration: time.Minute})

	l.Allow("1.2.3.4")
	if l.Allow("1.2.3.4") {
		t.Fatal("expected second attempt from same key to be rejected")
	}
	if !l.Allow("5.6.7.8") {
		t.Fatal("expected attempt from a different key to pass")
	}
}

func TestEmptyKeyAlwaysAllowed(t *testing.T) {
	l := New(Limit{MaxAttempts: 1, Window: time.Minute, BanThreshold: 1, BanDuration: time.Minute})
	for i := 0; i < 10; i++ {
		if !l.Allow("") {
			t.Fatal("empty key must never be limited")
		}
	}
}

func TestBanAfterRepeatedViolations(t *testing.T) {
	l := New(Limit{MaxAttempts: 1, Window: time.Hour, BanThreshold: 2, BanDuration: time.Hour})

	l.Allow("1.2.3.4")      // uses the budget
	l.Allow("1.2.3.4")      // violation 1
	l.Allow("1.2.3.4")      // violation 2, triggers the ban

	if l.Allow("1.2.3.4") {
		t.Fatal("expected banned key to be rejected")
	}
}
