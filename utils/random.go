package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// ticketCharset matches the code alphabet printed on tickets and encoded in
// entry QR codes.
const ticketCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// TicketCodeLength is the number of characters in an entry code.
const TicketCodeLength = 6

// GenerateTicketCode returns a random entry code drawn from crypto/rand.
// Uniqueness is enforced by the store; callers retry on collision.
func GenerateTicketCode() (string, error) {
	return randomFromCharset(TicketCodeLength)
}

// GenerateTicketID returns a human-readable ticket identifier, e.g. TKT-9F3KQA.
func GenerateTicketID() (string, error) {
	code, err := randomFromCharset(6)
	if err != nil {
		return "", err
	}
	return "TKT-" + code, nil
}

func randomFromCharset(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	for i := 0; i < length; i++ {
		buf[i] = ticketCharset[int(buf[i])%len(ticketCharset)]
	}

	return string(buf), nil
}

// GenerateCode returns n random bytes as an uppercase hex string.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}
