package license

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// keyPrefix identifies pharmacy activation keys. Keys render as
	// PHR-XXXX-XXXX-... so operators can recognize and type them.
	keyPrefix = "PHR"

	keyVersion = 0x01

	// payload layout: version(1) | pharmacy uuid(16) | expiry unix(8) | machine digest(8)
	payloadLen = 1 + 16 + 8 + 8
	// tagLen is the truncated HMAC-SHA256 integrity tag length.
	tagLen = 10

	machineDigestLen = 8
)

// keyEncoding is unpadded base32: uppercase letters and digits only, the
// same character set an operator can read off a card or invoice.
var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Claims are the facts an activation key carries. MachineDigest is empty
// for keys not yet bound to hardware; otherwise it is the hex form of
// MachineDigest(machineID).
type Claims struct {
	PharmacyID    uuid.UUID
	ExpiresAt     time.Time
	MachineDigest string
}

// Bound reports whether the claims carry a hardware binding.
func (c Claims) Bound() bool {
	return c.MachineDigest != ""
}

// MachineDigest derives the fixed-width digest embedded in keys from a
// machine fingerprint. Embedding a digest instead of the raw fingerprint
// keeps every key the same length regardless of binding.
func MachineDigest(machineID string) string {
	if machineID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(machineID))
	return hex.EncodeToString(sum[:machineDigestLen])
}

// KeyCodec encodes and decodes activation keys under a signing secret.
// The secret is injected at construction; there is no process-wide key.
type KeyCodec struct {
	secret []byte
}

// NewKeyCodec creates a codec. The secret must be at least 16 bytes; a
// shorter secret makes the integrity tag guessable.
func NewKeyCodec(secret []byte) (*KeyCodec, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("key codec secret must be at least 16 bytes, got %d", len(secret))
	}
	c := &KeyCodec{secret: make([]byte, len(secret))}
	copy(c.secret, secret)
	return c, nil
}

// Encode serializes claims into an opaque activation key. Expiry is
// carried at second resolution; sub-second precision is dropped.
func (c *KeyCodec) Encode(claims Claims) (string, error) {
	if claims.PharmacyID == uuid.Nil {
		return "", &ValidationError{Field: "pharmacy_id", Reason: "must not be empty"}
	}
	if claims.ExpiresAt.IsZero() {
		return "", &ValidationError{Field: "expires_at", Reason: "must not be zero"}
	}

	payload := make([]byte, payloadLen)
	payload[0] = keyVersion
	copy(payload[1:17], claims.PharmacyID[:])
	binary.BigEndian.PutUint64(payload[17:25], uint64(claims.ExpiresAt.Unix()))
	if claims.MachineDigest != "" {
		digest, err := hex.DecodeString(claims.MachineDigest)
		if err != nil || len(digest) != machineDigestLen {
			return "", &ValidationError{Field: "machine_digest", Reason: "must be 16 hex characters"}
		}
		copy(payload[25:33], digest)
	}

	tag := c.tag(payload)
	raw := append(payload, tag...)
	return keyPrefix + keyEncoding.EncodeToString(raw), nil
}

// Decode parses and verifies an activation key. It returns
// ErrMalformedKey when the structure cannot be parsed and
// ErrIntegrityViolation when the tag does not match; callers reject both
// the same way.
func (c *KeyCodec) Decode(key string) (Claims, error) {
	normalized := NormalizeKey(key)
	if !strings.HasPrefix(normalized, keyPrefix) {
		return Claims{}, fmt.Errorf("%w: missing %s prefix", ErrMalformedKey, keyPrefix)
	}

	raw, err := keyEncoding.DecodeString(normalized[len(keyPrefix):])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if len(raw) != payloadLen+tagLen {
		return Claims{}, fmt.Errorf("%w: unexpected length %d", ErrMalformedKey, len(raw))
	}

	payload, tag := raw[:payloadLen], raw[payloadLen:]
	if payload[0] != keyVersion {
		return Claims{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedKey, payload[0])
	}
	if !hmac.Equal(tag, c.tag(payload)) {
		return Claims{}, ErrIntegrityViolation
	}

	var claims Claims
	copy(claims.PharmacyID[:], payload[1:17])
	claims.ExpiresAt = time.Unix(int64(binary.BigEndian.Uint64(payload[17:25])), 0).UTC()

	digest := payload[25:33]
	bound := false
	for _, b := range digest {
		if b != 0 {
			bound = true
			break
		}
	}
	if bound {
		claims.MachineDigest = hex.EncodeToString(digest)
	}
	return claims, nil
}

func (c *KeyCodec) tag(payload []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return mac.Sum(nil)[:tagLen]
}

// NormalizeKey strips dashes and whitespace and uppercases, accepting
// keys however the operator typed or pasted them.
func NormalizeKey(key string) string {
	key = strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '\t':
			return -1
		}
		return r
	}, key)
	return strings.ToUpper(strings.TrimSpace(key))
}

// FormatKeyWithDashes renders a key in groups of four for display and
// hand entry, e.g. PHRA-BCDE-FGHI-....
func FormatKeyWithDashes(key string) string {
	normalized := NormalizeKey(key)
	var b strings.Builder
	for i, r := range normalized {
		if i > 0 && i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MaskKey redacts the middle of a key for logs, keeping enough of the
// ends to correlate support requests.
func MaskKey(key string) string {
	normalized := NormalizeKey(key)
	if len(normalized) <= 10 {
		return strings.Repeat("*", len(normalized))
	}
	return normalized[:6] + "..." + normalized[len(normalized)-4:]
}
