package auth

import "golang.org/x/crypto/bcrypt"

// bcrypt cost 10 matches what existing account rows were hashed with.
const hashCost = 10

// HashPassword hashes a plaintext password for storage.
func HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), hashCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether plain matches the stored hash.
func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
