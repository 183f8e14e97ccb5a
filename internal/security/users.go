package security

import (
	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 8

// HashPasswords returns a copy of users with bcrypt hashed passwords.
func HashPasswords(users []ua.UserNameIdentity) ([]ua.UserNameIdentity, error) {
	hashed := make([]ua.UserNameIdentity, len(users))
	for i, u := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcryptCost)
		if err != nil {
			return nil, errors.Wrapf(err, "hash password of %s", u.UserName)
		}
		hashed[i] = ua.UserNameIdentity{UserName: u.UserName, Password: string(hash)}
	}
	return hashed, nil
}

// Authenticate checks identity against users hashed by HashPasswords.
func Authenticate(users []ua.UserNameIdentity, identity ua.UserNameIdentity) error {
	for _, u := range users {
		if u.UserName != identity.UserName {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(identity.Password)) == nil {
			return nil
		}
	}
	return ua.BadUserAccessDenied
}
