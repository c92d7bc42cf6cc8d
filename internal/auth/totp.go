package auth

import (
	"encoding/base64"
	"fmt"
	"time"

	"moderation-api/internal/clock"
	"moderation-api/internal/models"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// TOTPEnrollment is returned when a user starts two-factor setup. The secret
// is stored as pending until the user proves possession with a valid code.
type TOTPEnrollment struct {
	Secret          string
	ProvisioningURI string
	QRCodeDataURL   string
}

// TOTPManager generates and validates time-based one-time passwords.
type TOTPManager struct {
	issuer string
	clock  clock.Clock
}

func NewTOTPManager(issuer string, clk clock.Clock) *TOTPManager {
	if clk == nil {
		clk = clock.System{}
	}
	return &TOTPManager{issuer: issuer, clock: clk}
}

// GenerateEnrollment creates a fresh TOTP secret for the account and renders
// the otpauth URI as a QR code PNG, base64-encoded for inline display.
func (m *TOTPManager) GenerateEnrollment(accountName string) (*TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: accountName,
		SecretSize:  32,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to encode totp qr code: %w", err)
	}

	return &TOTPEnrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCodeDataURL:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// Verify checks a six-digit code against the secret, allowing one period of
// clock skew in either direction.
func (m *TOTPManager) Verify(code, secret string) error {
	valid, err := totp.ValidateCustom(code, secret, m.clock.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidToken, err)
	}
	if !valid {
		return fmt.Errorf("%w: invalid two-factor code", models.ErrUnauthorized)
	}
	return nil
}

// ValidateAt is the testable form of Verify with an explicit timestamp.
func (m *TOTPManager) ValidateAt(code, secret string, at time.Time) bool {
	valid, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}
