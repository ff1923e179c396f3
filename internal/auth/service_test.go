package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type memPrefs struct {
	values map[string]bool
}

func newMemPrefs() *memPrefs {
	return &memPrefs{values: make(map[string]bool)}
}

func (m *memPrefs) GetBoolPref(_ context.Context, name string, fallback bool) (bool, error) {
	if v, ok := m.values[name]; ok {
		return v, nil
	}
	return fallback, nil
}

func (m *memPrefs) SetBoolPref(_ context.Context, name string, value bool) error {
	m.values[name] = value
	return nil
}

func newTestService(t *testing.T) (*AuthService, *memPrefs) {
	t.Helper()
	prefs := newMemPrefs()
	jwtHandler := NewJWTHandler("test-secret-at-least-32-characters!!", time.Hour)
	svc, err := NewAuthService(zap.NewNop(), jwtHandler, prefs, "1111")
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return svc, prefs
}

func TestSubmitAccessCodeIssuesValidToken(t *testing.T) {
	svc, _ := newTestService(t)

	token, err := svc.SubmitAccessCode(context.Background(), "1111")
	if err != nil {
		t.Fatalf("SubmitAccessCode: %v", err)
	}
	if err := svc.ValidateToken(token); err != nil {
		t.Errorf("issued token invalid: %v", err)
	}
}

func TestSubmitAccessCodeRejectsWrongCode(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SubmitAccessCode(context.Background(), "0000")
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("err = %v, want ErrInvalidCode", err)
	}
}

func TestGateOpensAfterFirstUnlock(t *testing.T) {
	svc, prefs := newTestService(t)
	ctx := context.Background()

	if svc.GateOpen(ctx) {
		t.Fatal("gate open before any unlock")
	}

	if _, err := svc.SubmitAccessCode(ctx, "1111"); err != nil {
		t.Fatalf("SubmitAccessCode: %v", err)
	}

	if !svc.GateOpen(ctx) {
		t.Error("gate not open after unlock")
	}
	if !prefs.values[PrefPasswordEntered] {
		t.Error("unlock flag not persisted")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.ValidateToken("not-a-jwt"); err == nil {
		t.Error("garbage token accepted")
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	svc, _ := newTestService(t)

	other := NewJWTHandler("another-secret-also-32-characters!!!", time.Hour)
	token, err := other.GenerateAccessToken()
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	if err := svc.ValidateToken(token); err == nil {
		t.Error("token signed with a different secret accepted")
	}
}

func TestCodeHasherRoundTrip(t *testing.T) {
	hasher := NewCodeHasher()

	hash, err := hasher.HashCode("1111")
	if err != nil {
		t.Fatalf("HashCode: %v", err)
	}

	ok, err := hasher.VerifyCode("1111", hash)
	if err != nil || !ok {
		t.Errorf("VerifyCode(correct) = %v, %v", ok, err)
	}

	ok, err = hasher.VerifyCode("2222", hash)
	if err != nil || ok {
		t.Errorf("VerifyCode(wrong) = %v, %v", ok, err)
	}
}
