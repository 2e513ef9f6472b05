package auth

import "golang.org/x/crypto/bcrypt"

// HashOperatorKey hashes an operator key for AUTH_OPERATOR_KEY_HASH.
func HashOperatorKey(key string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CompareOperatorKey verifies a presented key against its hash.
func CompareOperatorKey(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
