package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-jwt-secret-for-unit-tests"

func TestTokenCodec_IssueVerify(t *testing.T) {
	codec := NewTokenCodec(testSecret, 24*time.Hour)

	token, err := codec.Issue("a1b2c3d4e5f6", "user@example.com", "Тестовый Пользователь")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID() != "a1b2c3d4e5f6" {
		t.Errorf("UserID = %q, ожидалось a1b2c3d4e5f6", claims.UserID())
	}
	if claims.Email != "user@example.com" {
		t.Errorf("Email = %q, ожидалось user@example.com", claims.Email)
	}
	if claims.Name != "Тестовый Пользователь" {
		t.Errorf("Name = %q", claims.Name)
	}
	exp := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time)
	if exp != 24*time.Hour {
		t.Errorf("срок жизни токена = %v, ожидалось 24h", exp)
	}
}

func TestTokenCodec_Expired(t *testing.T) {
	codec := NewTokenCodec(testSecret, 24*time.Hour)

	// Истёкший токен подписываем тем же секретом напрямую.
	now := time.Now().UTC()
	claims := &SessionClaims{
		Email: "user@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "a1b2c3d4e5f6",
			IssuedAt:  jwt.NewNumericDate(now.Add(-25 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	_, err = codec.Verify(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("ожидалась ErrTokenExpired, получено: %v", err)
	}
}

func TestTokenCodec_WrongSecret(t *testing.T) {
	codec := NewTokenCodec(testSecret, 24*time.Hour)
	other := NewTokenCodec("another-secret", 24*time.Hour)

	token, err := other.Issue("a1b2c3d4e5f6", "user@example.com", "User")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_, err = codec.Verify(token)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ожидалась ErrTokenInvalid, получено: %v", err)
	}
}

func TestTokenCodec_Tampered(t *testing.T) {
	codec := NewTokenCodec(testSecret, 24*time.Hour)

	token, err := codec.Issue("a1b2c3d4e5f6", "user@example.com", "User")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Портим payload, подпись остаётся от исходного токена.
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("неожиданный формат токена: %d частей", len(parts))
	}
	tampered := parts[0] + "." + parts[1][:len(parts[1])-2] + "xx." + parts[2]

	if _, err := codec.Verify(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ожидалась ErrTokenInvalid, получено: %v", err)
	}
}

func TestTokenCodec_NoneAlgorithm(t *testing.T) {
	codec := NewTokenCodec(testSecret, 24*time.Hour)

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "a1b2c3d4e5f6",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := codec.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("токен с alg=none должен отклоняться, получено: %v", err)
	}
}

func TestTokenCodec_Garbage(t *testing.T) {
	codec := NewTokenCodec(testSecret, 24*time.Hour)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := codec.Verify(token); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("Verify(%q): ожидалась ErrTokenInvalid, получено: %v", token, err)
		}
	}
}
