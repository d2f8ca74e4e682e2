// Package rand provides the randomness the server needs: handshake filler bytes and connection ids.
package rand

import (
	cryptoRand "crypto/rand"
	"io"

	"github.com/google/uuid"
)

// Reader is the source used by GenerateCryptoSafeRandomData. Tests may replace it.
var Reader io.Reader = cryptoRand.Reader

// GenerateCryptoSafeRandomData fills b with cryptographically-safe random data.
func GenerateCryptoSafeRandomData(b []byte) error {
	_, err := io.ReadFull(Reader, b)
	return err
}

// GenerateUuid returns a UUID in string format (including hyphens).
func GenerateUuid() string {
	return uuid.NewString()
}
