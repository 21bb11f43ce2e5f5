// Package auth implements the authorization and session-backed login model
// consumed by the router: identity resolution from credentials, role to
// ability expansion, and allow/deny and required-ability checks.
//
// Grounded on original_source/src/auth.c (httpCreateAuth, httpAddRole,
// httpAddUser, httpCanUser) and generalized from Go idioms rather than the
// C "manage" callback style.
package auth

import (
	"net"
	"strings"
	"sync"

	"github.com/embedthis/httpcore/internal/log"
)

// Type is the authentication scheme a route's Auth negotiates with the
// client.
type Type int

const (
	TypeNone Type = iota
	TypeBasic
	TypeDigest
	TypeForm
)

func (t Type) String() string {
	switch t {
	case TypeBasic:
		return "basic"
	case TypeDigest:
		return "digest"
	case TypeForm:
		return "form"
	default:
		return "none"
	}
}

// StoreKind selects the password verification backend. System and App
// are pluggable: the caller supplies a Verifier; httpcore never talks to
// PAM or an OS user database directly (spec §1, out of scope).
type StoreKind int

const (
	StoreNone StoreKind = iota
	StoreInternal
	StoreSystem
	StoreApp
)

// ParseStoreKind resolves a configured store name to a StoreKind,
// preserving the deprecated aliases the original kept behind compile-time
// flags ("file" -> internal, "pam" -> system). This module keeps the
// aliases: operators migrating existing route configs should not have to
// rewrite them (Open Question in spec §9, resolved here; see DESIGN.md).
func ParseStoreKind(name string) StoreKind {
	switch strings.ToLower(name) {
	case "internal", "file":
		return StoreInternal
	case "system", "pam":
		return StoreSystem
	case "app":
		return StoreApp
	default:
		return StoreNone
	}
}

// Order controls how Allow/Deny sets combine, mirroring Apache-style
// ordering semantics from the original route.c / auth.c pair.
type Order int

const (
	AllowDeny Order = iota
	DenyAllow
)

// Verifier checks a username/password pair against an external store
// (System or App). Internal storage is handled directly by Auth without a
// Verifier (auth.c's fileVerifyUser).
type Verifier interface {
	Verify(username, password string) (bool, error)
}

// Auth is the authorization configuration attached to a route (spec §3.3).
// Collection fields (roles, users, allow, deny) are copy-on-write against
// a parent, following the same scheme as Route (see router/route.go and
// DESIGN.md).
type Auth struct {
	Type     Type
	Store    StoreKind
	Verifier Verifier
	Realm    string
	QOP      string
	Order    Order

	LoginPage   string
	LoginURI    string
	LogoutURI   string
	LoggedInURI string

	parent *Auth
	mu     sync.RWMutex

	roles             map[string]*Role
	users             map[string]*User
	requiredAbilities map[string]struct{}
	allow             map[string]struct{}
	deny              map[string]struct{}

	log *log.Logger
}

// New creates a root Auth with empty collections, equivalent to
// httpCreateAuth.
func New() *Auth {
	return &Auth{
		Realm: "httpcore",
		roles: map[string]*Role{},
		users: map[string]*User{},
		allow: map[string]struct{}{},
		deny:  map[string]struct{}{},
		log:   log.Default(),
	}
}

// NewInherited creates a child Auth sharing parent's collections until the
// child mutates one of them (copy-on-write), equivalent to
// httpCreateInheritedAuth.
func NewInherited(parent *Auth) *Auth {
	if parent == nil {
		return New()
	}
	parent.mu.RLock()
	defer parent.mu.RUnlock()
	return &Auth{
		Type:        parent.Type,
		Store:       parent.Store,
		Verifier:    parent.Verifier,
		Realm:       parent.Realm,
		QOP:         parent.QOP,
		Order:       parent.Order,
		LoginPage:   parent.LoginPage,
		LoginURI:    parent.LoginURI,
		LogoutURI:   parent.LogoutURI,
		LoggedInURI: parent.LoggedInURI,
		parent:      parent,
		roles:       parent.roles,
		users:       parent.users,
		allow:       parent.allow,
		deny:        parent.deny,
		log:         parent.log,
	}
}

// graduateRoles clones the roles map the first time this Auth needs to
// mutate it while still aliasing its parent's (the copy-on-write scheme
// described by route.c's GRADUATE_HASH macro).
func (a *Auth) graduateRoles() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.parent != nil && mapsShareRoles(a.roles, a.parent.roles) {
		cloned := make(map[string]*Role, len(a.roles))
		for k, v := range a.roles {
			cloned[k] = v
		}
		a.roles = cloned
	} else if a.roles == nil {
		a.roles = map[string]*Role{}
	}
}

func mapsShareRoles(a, b map[string]*Role) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func (a *Auth) graduateUsers() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.parent != nil && mapsShareUsers(a.users, a.parent.users) {
		cloned := make(map[string]*User, len(a.users))
		for k, v := range a.users {
			cloned[k] = v
		}
		a.users = cloned
	} else if a.users == nil {
		a.users = map[string]*User{}
	}
}

func mapsShareUsers(a, b map[string]*User) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func (a *Auth) graduateAllowDeny(which *map[string]struct{}, parentWhich map[string]struct{}) {
	if *which == nil || mapsEqualSet(*which, parentWhich) {
		cloned := make(map[string]struct{}, len(parentWhich))
		for k := range parentWhich {
			cloned[k] = struct{}{}
		}
		*which = cloned
	}
}

func mapsEqualSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// AddRole defines a role and its ability set, whitespace-separated
// (auth.c:599 tokenizes roles' own ability lists on space/tab only, unlike
// user role-lists and required-ability lists which also accept commas —
// preserved in AddUser/SetRequiredAbilities below).
func (a *Auth) AddRole(name, abilities string) *Role {
	a.mu.Lock()
	r := &Role{Name: name, Abilities: map[string]struct{}{}}
	for _, tok := range strings.Fields(abilities) {
		r.Abilities[tok] = struct{}{}
	}
	a.mu.Unlock()
	a.graduateRoles()
	a.mu.Lock()
	a.roles[name] = r
	a.mu.Unlock()
	return r
}

// RemoveRole deletes a previously defined role.
func (a *Auth) RemoveRole(name string) {
	a.graduateRoles()
	a.mu.Lock()
	delete(a.roles, name)
	a.mu.Unlock()
}

func (a *Auth) lookupRole(name string) (*Role, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.roles[name]
	return r, ok
}

// AddUser registers a user with a cleartext or pre-hashed password and a
// whitespace/comma separated roles-or-abilities list; ability expansion is
// computed immediately, mirroring computeUserAbilities in auth.c.
func (a *Auth) AddUser(name, password, roles string) *User {
	u := &User{Name: name, PasswordHash: password, Roles: roles}
	a.expandAbilities(u)
	a.graduateUsers()
	a.mu.Lock()
	a.users[name] = u
	a.mu.Unlock()
	return u
}

// expandAbilities unions, for each whitespace/comma separated token in the
// user's roles string, that role's ability set if the token names a role,
// else treats the token itself as a bare ability (auth.c:712 computeAbilities).
func (a *Auth) expandAbilities(u *User) {
	u.Abilities = map[string]struct{}{}
	for _, tok := range splitRolesOrAbilities(u.Roles) {
		if role, ok := a.lookupRole(tok); ok {
			for ab := range role.Abilities {
				u.Abilities[ab] = struct{}{}
			}
		} else {
			u.Abilities[tok] = struct{}{}
		}
	}
}

func splitRolesOrAbilities(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
}

// User looks up a previously added user.
func (a *Auth) User(name string) (*User, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	u, ok := a.users[name]
	return u, ok
}

// SetRequiredAbilities sets the ability set a caller must hold to pass the
// "auth" condition for any route inheriting this Auth (spec §3.3,
// required_abilities).
func (a *Auth) SetRequiredAbilities(abilities string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requiredAbilities = map[string]struct{}{}
	for _, tok := range splitRolesOrAbilities(abilities) {
		a.requiredAbilities[tok] = struct{}{}
	}
}

// RequiredAbilities reports the configured required-ability set.
func (a *Auth) RequiredAbilities() map[string]struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.requiredAbilities
}

// Allow adds a peer address or CIDR to the allow set.
func (a *Auth) Allow(addr string) {
	a.graduateAllowSet()
	a.mu.Lock()
	a.allow[addr] = struct{}{}
	a.mu.Unlock()
}

// Deny adds a peer address or CIDR to the deny set.
func (a *Auth) Deny(addr string) {
	a.graduateDenySet()
	a.mu.Lock()
	a.deny[addr] = struct{}{}
	a.mu.Unlock()
}

func (a *Auth) graduateAllowSet() {
	if a.parent != nil {
		a.graduateAllowDeny(&a.allow, a.parent.allow)
	} else if a.allow == nil {
		a.allow = map[string]struct{}{}
	}
}

func (a *Auth) graduateDenySet() {
	if a.parent != nil {
		a.graduateAllowDeny(&a.deny, a.parent.deny)
	} else if a.deny == nil {
		a.deny = map[string]struct{}{}
	}
}

// AllowDenyCheck evaluates the allow/deny sets against a peer address per
// Order, implementing the "allowDeny" condition (spec §4.1.4).
func (a *Auth) AllowDenyCheck(peerAddr string) bool {
	host, _, err := net.SplitHostPort(peerAddr)
	if err != nil {
		host = peerAddr
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	matches := func(set map[string]struct{}) bool {
		if _, ok := set[host]; ok {
			return true
		}
		ip := net.ParseIP(host)
		if ip == nil {
			return false
		}
		for entry := range set {
			if _, cidr, err := net.ParseCIDR(entry); err == nil && cidr.Contains(ip) {
				return true
			}
		}
		return false
	}
	allowed := matches(a.allow)
	denied := matches(a.deny)
	switch a.Order {
	case DenyAllow:
		if denied && !allowed {
			return false
		}
		return true
	default: // AllowDeny
		if len(a.allow) == 0 && len(a.deny) == 0 {
			return true
		}
		if denied {
			return allowed
		}
		return allowed || len(a.allow) == 0
	}
}

// CanUser reports whether the given user holds every ability token in the
// comma/space separated required set (spec §4.3.3, auth.c's httpCanUser).
// An empty required set always passes.
func (a *Auth) CanUser(username, required string) bool {
	tokens := splitRolesOrAbilities(required)
	if len(tokens) == 0 {
		return true
	}
	u, ok := a.User(username)
	if !ok {
		a.log.WithField("user", username).Debug("auth: unknown user for ability check")
		return false
	}
	for _, tok := range tokens {
		if _, ok := u.Abilities[tok]; !ok {
			a.log.WithFields(log.Fields{"user": username, "ability": tok}).Debug("auth: missing ability")
			return false
		}
	}
	return true
}
