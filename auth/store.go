package auth

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrNoStore is returned by Login when the Auth has no configured Store.
var ErrNoStore = errors.New("auth: no password store configured")

// ErrUnknownUser is returned when the username does not resolve to a
// registered account.
var ErrUnknownUser = errors.New("auth: unknown user")

// ErrBadPassword is returned on a password mismatch.
var ErrBadPassword = errors.New("auth: invalid password")

// Login verifies username/password and, on success, returns the matched
// User. Mirrors auth.c's httpLogin / fileVerifyUser dispatch: a null
// password succeeds only when the Internal store holds no password at all
// (auto-login), a "BF<n>:" prefixed hash is verified with bcrypt, anything
// else is compared as MD5("username:realm:password").
func (a *Auth) Login(username, password string) (*User, error) {
	if a.Store == StoreNone {
		return nil, ErrNoStore
	}
	switch a.Store {
	case StoreInternal:
		return a.loginInternal(username, password)
	case StoreSystem, StoreApp:
		if a.Verifier == nil {
			return nil, ErrNoStore
		}
		ok, err := a.Verifier.Verify(username, password)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrBadPassword
		}
		u, ok := a.User(username)
		if !ok {
			// Pluggable stores may authenticate users not present in the
			// local user table; synthesize a bare record with no
			// abilities rather than failing the login.
			u = &User{Name: username, Abilities: map[string]struct{}{}}
		}
		return u, nil
	default:
		return nil, ErrNoStore
	}
}

func (a *Auth) loginInternal(username, password string) (*User, error) {
	u, ok := a.User(username)
	if !ok {
		return nil, ErrUnknownUser
	}
	if password == "" {
		if u.PasswordHash == "" {
			return u, nil
		}
		return nil, ErrBadPassword
	}
	if isBcryptHash(u.PasswordHash) {
		hash := strings.SplitN(u.PasswordHash, ":", 2)[1]
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(fmt.Sprintf("%s:%s:%s", username, a.Realm, password))); err != nil {
			return nil, ErrBadPassword
		}
		return u, nil
	}
	sum := md5Hex(fmt.Sprintf("%s:%s:%s", username, a.Realm, password))
	if sum != u.PasswordHash {
		return nil, ErrBadPassword
	}
	return u, nil
}

// isBcryptHash reports whether hash carries the "BF<digits>:" prefix used
// by auth.c to flag a bcrypt-hashed password (the original's "Blowfish"
// label names the bcrypt KDF, not raw Blowfish encryption).
func isBcryptHash(hash string) bool {
	if !strings.HasPrefix(hash, "BF") || len(hash) < 4 {
		return false
	}
	rest := hash[2:]
	idx := strings.IndexByte(rest, ':')
	if idx <= 0 {
		return false
	}
	if _, err := strconv.Atoi(rest[:idx]); err != nil {
		return false
	}
	return true
}

// HashPassword produces a "BF<cost>:<hash>" record suitable for storing as
// a User's PasswordHash, for callers that want to provision bcrypt
// accounts instead of the legacy MD5 scheme.
func HashPassword(username, realm, password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(fmt.Sprintf("%s:%s:%s", username, realm, password)), cost)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("BF%d:%s", cost, hash), nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
