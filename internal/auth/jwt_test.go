package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func writeTestKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "jwt.pub")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		t.Fatal(err)
	}
	return key, path
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestValidate(t *testing.T) {
	key, path := writeTestKey(t)
	jv, err := NewJWTValidator(path)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("valid", func(t *testing.T) {
		tok := signToken(t, key, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		sub, err := jv.Validate(tok)
		if err != nil {
			t.Fatal(err)
		}
		if sub != "user-1" {
			t.Errorf("sub = %q", sub)
		}
	})

	t.Run("expired", func(t *testing.T) {
		tok := signToken(t, key, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		if _, err := jv.Validate(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("missing sub", func(t *testing.T) {
		tok := signToken(t, key, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		if _, err := jv.Validate(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"})
		s, err := tok.SignedString([]byte("secret"))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := jv.Validate(s); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatal(err)
		}
		tok := signToken(t, other, jwt.MapClaims{"sub": "user-1"})
		if _, err := jv.Validate(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := jv.Validate("not-a-token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("got %v", err)
		}
	})
}
