package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// PrefPasswordEntered is the persisted flag that remembers a successful
// access-code entry across restarts.
const PrefPasswordEntered = "password_entered"

// ErrInvalidCode is returned when the submitted access code does not match.
var ErrInvalidCode = errors.New("invalid access code")

// PrefStore is the persisted flag table used to remember the unlock.
type PrefStore interface {
	GetBoolPref(ctx context.Context, name string, fallback bool) (bool, error)
	SetBoolPref(ctx context.Context, name string, value bool) error
}

// AuthService gates the API behind a single shared access code. The code is
// hashed once at startup; successful entry persists the unlock flag and
// returns a bearer token.
type AuthService struct {
	logger     *zap.Logger
	jwtHandler *JWTHandler
	hasher     *CodeHasher
	prefs      PrefStore

	codeHash string
}

func NewAuthService(logger *zap.Logger, jwtHandler *JWTHandler, prefs PrefStore, accessCode string) (*AuthService, error) {
	hasher := NewCodeHasher()
	codeHash, err := hasher.HashCode(accessCode)
	if err != nil {
		return nil, fmt.Errorf("failed to hash access code: %w", err)
	}

	return &AuthService{
		logger:     logger,
		jwtHandler: jwtHandler,
		hasher:     hasher,
		prefs:      prefs,
		codeHash:   codeHash,
	}, nil
}

// SubmitAccessCode verifies the code, records the unlock, and issues a token.
func (a *AuthService) SubmitAccessCode(ctx context.Context, code string) (string, error) {
	ok, err := a.hasher.VerifyCode(code, a.codeHash)
	if err != nil {
		return "", fmt.Errorf("failed to verify access code: %w", err)
	}
	if !ok {
		a.logger.Warn("Access code rejected")
		return "", ErrInvalidCode
	}

	if err := a.prefs.SetBoolPref(ctx, PrefPasswordEntered, true); err != nil {
		// The unlock still works for this session; only the restart
		// shortcut is lost.
		a.logger.Error("Failed to persist unlock flag", zap.Error(err))
	}

	token, err := a.jwtHandler.GenerateAccessToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	a.logger.Info("Access code accepted")
	return token, nil
}

// GateOpen reports whether the access code was ever entered successfully.
func (a *AuthService) GateOpen(ctx context.Context) bool {
	open, err := a.prefs.GetBoolPref(ctx, PrefPasswordEntered, false)
	if err != nil {
		a.logger.Error("Failed to read unlock flag", zap.Error(err))
		return false
	}
	return open
}

// ValidateToken satisfies the websocket hub's validator interface.
func (a *AuthService) ValidateToken(token string) error {
	_, err := a.jwtHandler.ValidateAccessToken(token)
	return err
}
