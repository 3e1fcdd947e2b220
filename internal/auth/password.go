package auth

import "golang.org/x/crypto/bcrypt"

const bcryptCost = 12

func HashPassword(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// HashIfChanged leaves current alone when plain already matches it, so a
// hash is only recomputed for a new or changed password.
func HashIfChanged(current, plain string) (string, bool, error) {
	if current != "" && CheckPassword(current, plain) {
		return current, false, nil
	}
	hashed, err := HashPassword(plain)
	if err != nil {
		return "", false, err
	}
	return hashed, true, nil
}

func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
