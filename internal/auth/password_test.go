package auth

import (
	"errors"
	"strings"
	"testing"
)

// Cost 4 is bcrypt's minimum and keeps these tests fast.
func newTestPasswordService() *PasswordService {
	return NewPasswordServiceForTest(4)
}

func TestHash_OutputLooksBcrypt(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("password123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash)
	}
}

func TestHash_SaltIsRandom(t *testing.T) {
	ps := newTestPasswordService()

	hash1, _ := ps.Hash("same-password")
	hash2, _ := ps.Hash("same-password")

	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password")
	}
}

func TestHash_Length(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("a", MaxPasswordBytes)); err != nil {
		t.Fatalf("Hash() should accept a %d-byte password, got: %v", MaxPasswordBytes, err)
	}
	if _, err := ps.Hash(strings.Repeat("a", MaxPasswordBytes+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("Hash() error = %v, want ErrPasswordTooLong", err)
	}
}

func TestVerify(t *testing.T) {
	ps := newTestPasswordService()
	hash, err := ps.Hash("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		wantErr  bool
		mismatch bool
	}{
		{"correct", hash, "correct-horse-battery-staple", false, false},
		{"wrong", hash, "wrong-password", true, true},
		{"empty password", hash, "", true, true},
		{"no stored hash", "", "anything", true, true},
		{"garbage hash", "not-a-bcrypt-hash", "password", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.Verify(tt.hash, tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.mismatch && !errors.Is(err, ErrPasswordMismatch) {
				t.Errorf("Verify() error = %v, want ErrPasswordMismatch", err)
			}
		})
	}
}

func TestHashVerify_RoundTrip(t *testing.T) {
	ps := newTestPasswordService()

	for _, password := range []string{"hello123", "p@$$w0rd!#%", "пароль-密码", "  spaced  "} {
		t.Run(password, func(t *testing.T) {
			hash, err := ps.Hash(password)
			if err != nil {
				t.Fatalf("Hash(%q) error = %v", password, err)
			}
			if err := ps.Verify(hash, password); err != nil {
				t.Errorf("Verify() failed for %q: %v", password, err)
			}
		})
	}
}
