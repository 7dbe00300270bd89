package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	resourceIDPrefix = "res_"
)

var resourceIDPattern = regexp.MustCompile(`^res_[a-zA-Z0-9]{24}$`)

// NewResourceID generates a new resource ID with the "res_" prefix
// followed by 24 cryptographically random alphanumeric characters.
func NewResourceID() string {
	return resourceIDPrefix + randomAlphanumeric(idLength)
}

// ValidateResourceID checks whether the given string is a valid resource ID
// (matches "res_" + 24 alphanumeric characters).
func ValidateResourceID(id string) bool {
	return resourceIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
