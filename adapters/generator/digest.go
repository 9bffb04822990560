package generator

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
)

// TokenLength is the length of every generated value: two hex-encoded SHA-256 digests
const TokenLength = 2 * 2 * sha256.Size

// Digest builds token values from two independent random sources, a v4 UUID and
// a raw read from the system CSPRNG. Each source is run through HMAC-SHA256
// keyed by itself and the hex digests are concatenated, so a weakness in one
// source alone does not make the value predictable.
type Digest struct {
	entropy io.Reader
}

// NewDigest creates a generator reading from crypto/rand
func NewDigest() ports.TokenGenerator {
	return &Digest{entropy: rand.Reader}
}

// NewDigestFrom creates a generator with a custom second entropy source
func NewDigestFrom(entropy io.Reader) ports.TokenGenerator {
	return &Digest{entropy: entropy}
}

// Generate returns a fresh token value
func (d *Digest) Generate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("uuid source: %w: %w", core.ErrGenerationFailed, err)
	}

	raw := make([]byte, 32)
	if _, err := io.ReadFull(d.entropy, raw); err != nil {
		return "", fmt.Errorf("entropy source: %w: %w", core.ErrGenerationFailed, err)
	}

	return digest(id[:]) + digest(raw), nil
}

func digest(key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(key)
	return hex.EncodeToString(mac.Sum(nil))
}
