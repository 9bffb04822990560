// Package account is a reference account store. It implements the password
// verifier, the external identity resolver and the account directory that the
// strategies consume, backed by memory or PostgreSQL.
package account

import (
	"strings"

	"github.com/layer-3/tokenauth/core"
	"golang.org/x/crypto/bcrypt"
)

// Profile fields kept as dedicated columns
const (
	FieldUsername  = "username"
	FieldEmail     = "email"
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
)

// dummyHash is compared against when the username is unknown so both paths
// spend the same bcrypt time
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("tokenauth-dummy-password"), bcrypt.DefaultCost)

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func checkPassword(hash, password string) bool {
	if hash == "" {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// usernameFor derives a username for an account created from an external profile
func usernameFor(ext core.ExternalIdentity) string {
	if email := ext.Profile[FieldEmail]; email != "" {
		return strings.ToLower(email)
	}
	return ext.Provider + ":" + ext.Handle
}

func normaliseEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
