package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// VerifySquareSignature checks Square's webhook signature scheme:
// base64(HMAC-SHA256(key, notificationURL + rawBody)). It returns false on
// any malformed input and never panics; a false result means reject with 401
// and stop processing.
func VerifySquareSignature(rawBody []byte, signatureHeader, signatureKey, notificationURL string) bool {
	if signatureHeader == "" || signatureKey == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// stripeSignatureTolerance bounds how stale a signed timestamp may be.
const stripeSignatureTolerance = 5 * time.Minute

// VerifyStripeSignature checks Stripe's "t=<unix>,v1=<hex hmac>" header:
// hex(HMAC-SHA256(secret, "<t>.<rawBody>")), rejecting timestamps outside the
// tolerance window. Same contract as VerifySquareSignature: false means 401.
func VerifyStripeSignature(rawBody []byte, signatureHeader, secret string, now time.Time) bool {
	if signatureHeader == "" || secret == "" {
		return false
	}

	var timestamp string
	var candidates []string

	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}

	if timestamp == "" || len(candidates) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > stripeSignatureTolerance || age < -stripeSignatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return true
		}
	}

	return false
}

// VerifyManualToken compares a bearer token from a trusted internal caller
// against the configured bcrypt hash.
func VerifyManualToken(token, tokenHash string) bool {
	if token == "" || tokenHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)) == nil
}

// HashManualToken produces the bcrypt hash stored in configuration.
func HashManualToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
