package auth

import (
	"fmt"
	"time"

	"moderation-api/internal/clock"
	"moderation-api/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager issues and verifies purpose-scoped JWTs. Every purpose is
// signed with a distinct secret, so a token minted for email confirmation
// can never pass verification as an access token, and vice versa.
type TokenManager struct {
	secrets models.TokenSecrets
	ttls    map[models.TokenPurpose]time.Duration
	clock   clock.Clock
}

// NewTokenManager creates a new TokenManager.
func NewTokenManager(secrets models.TokenSecrets, ttls map[models.TokenPurpose]time.Duration, clk clock.Clock) *TokenManager {
	if clk == nil {
		clk = clock.System{}
	}
	return &TokenManager{
		secrets: secrets,
		ttls:    ttls,
		clock:   clk,
	}
}

func (tm *TokenManager) secretFor(purpose models.TokenPurpose) ([]byte, error) {
	switch purpose {
	case models.PurposeAccess:
		return []byte(tm.secrets.AccessSecret), nil
	case models.PurposeTwoFactor:
		return []byte(tm.secrets.TwoFactorSecret), nil
	case models.PurposeEmailConfirm:
		return []byte(tm.secrets.EmailConfirmSecret), nil
	case models.PurposePasswordReset:
		return []byte(tm.secrets.PasswordResetSecret), nil
	default:
		return nil, fmt.Errorf("unknown token purpose: %s", purpose)
	}
}

// TTL returns the configured lifetime for a purpose.
func (tm *TokenManager) TTL(purpose models.TokenPurpose) time.Duration {
	return tm.ttls[purpose]
}

// Issue signs a token for the given purpose. The claims' Purpose, JTI, and
// time fields are set here; callers supply subject and purpose-specific
// fields only.
func (tm *TokenManager) Issue(purpose models.TokenPurpose, claims models.TokenClaims) (string, error) {
	key, err := tm.secretFor(purpose)
	if err != nil {
		return "", err
	}

	now := tm.clock.Now()
	claims.Purpose = purpose
	claims.ID = uuid.New().String()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(tm.ttls[purpose]))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", purpose, err)
	}

	return signed, nil
}

// Verify parses a token against the secret of the expected purpose and
// checks the claim set. Any failure (malformed token, bad signature, expiry,
// wrong purpose, missing subject) collapses to ErrInvalidToken; the cause is
// wrapped for logging but callers branch on the sentinel only.
func (tm *TokenManager) Verify(tokenString string, purpose models.TokenPurpose) (*models.TokenClaims, error) {
	key, err := tm.secretFor(purpose)
	if err != nil {
		return nil, err
	}

	claims := &models.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	}, jwt.WithTimeFunc(tm.clock.Now))

	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, models.ErrInvalidToken
	}

	if claims.Purpose != purpose {
		return nil, fmt.Errorf("%w: purpose mismatch", models.ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", models.ErrInvalidToken)
	}

	return claims, nil
}
