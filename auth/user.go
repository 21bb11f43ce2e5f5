package auth

// User is a registered account: a password record plus the roles string it
// was created with and abilities expanded from it (spec §3.3, auth.c's
// HttpUser / computeUserAbilities).
type User struct {
	Name         string
	PasswordHash string
	Roles        string
	Abilities    map[string]struct{}
}

// HasAbility reports whether the user's expanded ability set contains the
// given token.
func (u *User) HasAbility(ability string) bool {
	_, ok := u.Abilities[ability]
	return ok
}
