package utils

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when there is no stored hash, so a lookup
// miss costs the same bcrypt work as a wrong password.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("no-such-user"), bcrypt.DefaultCost)
	return h
})

// HashPassword hashes a plain password using bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares plain password with hashed password. An empty hash
// never matches.
func CheckPassword(plain, hashed string) bool {
	if hashed == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(plain))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
