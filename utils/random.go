package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateClientID returns a random hex identifier for a new connection.
func GenerateClientID() (string, error) {
	byt := make([]byte, 8)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return hex.EncodeToString(byt), nil
}
