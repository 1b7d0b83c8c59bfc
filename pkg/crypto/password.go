// Package crypto wraps password hashing so callers never touch bcrypt
// directly.
package crypto

import "golang.org/x/crypto/bcrypt"

// hashCost balances login latency against brute-force resistance.
const hashCost = bcrypt.DefaultCost

// HashPassword derives a storable hash from a plaintext password.
func HashPassword(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), hashCost)
}

// ComparePassword reports a non-nil error unless plain matches hash.
func ComparePassword(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}
