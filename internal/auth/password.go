// Package auth issues and verifies session credentials for pharmacy
// terminals. Credentials have a fixed short lifetime independent of
// license expiry; license state is re-evaluated on every privileged
// call, never baked into the token.
package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword returns the bcrypt hash of a password at the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares a bcrypt hash and a plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
