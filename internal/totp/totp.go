// Package totp implements RFC 6238 time-based one-time passwords used for
// multi-factor verification. All functions are stateless; the caller owns the
// per-principal secret.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"time"
)

const (
	// Period is the code validity window.
	Period = 30 * time.Second

	secretBytes = 20
	digits      = 1000000
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a fresh base32-encoded 20-byte secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("totp: read entropy: %w", err)
	}
	return encoding.EncodeToString(buf), nil
}

// ProvisioningURL builds the otpauth:// URL encoded into enrollment QR codes.
func ProvisioningURL(issuer, account, secret string) string {
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&algorithm=SHA1&digits=6&period=30",
		url.PathEscape(issuer), url.PathEscape(account), secret, url.QueryEscape(issuer))
}

// Verify reports whether code matches the secret for the current time,
// tolerating skewWindows periods of clock drift in either direction.
func Verify(secret, code string, skewWindows int) bool {
	return VerifyAt(secret, code, time.Now(), skewWindows)
}

// VerifyAt is Verify with an explicit evaluation time.
func VerifyAt(secret, code string, at time.Time, skewWindows int) bool {
	key, err := encoding.DecodeString(secret)
	if err != nil {
		return false
	}
	if len(code) != 6 {
		return false
	}
	counter := at.Unix() / int64(Period/time.Second)
	for i := -skewWindows; i <= skewWindows; i++ {
		if generate(key, uint64(counter+int64(i))) == code {
			return true
		}
	}
	return false
}

// generate computes the 6-digit code for one counter value using the
// dynamic-offset truncation from RFC 4226.
func generate(key []byte, counter uint64) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(buf)
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0xf
	value := int64(sum[offset]&0x7f)<<24 |
		int64(sum[offset+1])<<16 |
		int64(sum[offset+2])<<8 |
		int64(sum[offset+3])

	return fmt.Sprintf("%06d", value%digits)
}

// CodeAt returns the code for the given time. Exposed for enrollment flows
// that show the expected code in development tooling and for tests.
func CodeAt(secret string, at time.Time) (string, error) {
	key, err := encoding.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("totp: decode secret: %w", err)
	}
	return generate(key, uint64(at.Unix()/int64(Period/time.Second))), nil
}
