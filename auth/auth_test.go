package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbilityExpansion(t *testing.T) {
	a := New()
	a.Store = StoreInternal
	a.AddRole("admin", "manage edit")
	a.AddRole("viewer", "read")
	a.AddUser("alice", "", "admin viewer extra")

	assert.True(t, a.CanUser("alice", "read"))
	assert.True(t, a.CanUser("alice", "manage,extra"))
	assert.False(t, a.CanUser("alice", "delete"))
}

func TestCanUserEmptyRequiredPasses(t *testing.T) {
	a := New()
	assert.True(t, a.CanUser("nobody", ""))
}

func TestLoginInternalMD5(t *testing.T) {
	a := New()
	a.Realm = "test"
	a.Store = StoreInternal
	a.AddUser("bob", md5Hex("bob:test:secret"), "viewer")
	a.AddRole("viewer", "read")

	u, err := a.Login("bob", "secret")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Name)

	_, err = a.Login("bob", "wrong")
	assert.ErrorIs(t, err, ErrBadPassword)
}

func TestLoginInternalBcrypt(t *testing.T) {
	a := New()
	a.Realm = "test"
	a.Store = StoreInternal
	hash, err := HashPassword("carol", "test", "hunter2", 4)
	require.NoError(t, err)
	a.AddUser("carol", hash, "")

	_, err = a.Login("carol", "hunter2")
	require.NoError(t, err)

	_, err = a.Login("carol", "nope")
	assert.ErrorIs(t, err, ErrBadPassword)
}

func TestAllowDenyOrder(t *testing.T) {
	a := New()
	a.Order = AllowDeny
	a.Deny("10.0.0.1")
	assert.True(t, a.AllowDenyCheck("10.0.0.2:1234"))
	assert.False(t, a.AllowDenyCheck("10.0.0.1:1234"))

	b := New()
	b.Order = DenyAllow
	b.Allow("10.0.0.1")
	assert.True(t, b.AllowDenyCheck("10.0.0.1:1234"))
}

func TestInheritedAuthCopyOnWrite(t *testing.T) {
	parent := New()
	parent.Store = StoreInternal
	parent.AddRole("admin", "manage")
	child := NewInherited(parent)
	child.AddRole("viewer", "read")

	_, ok := parent.lookupRole("viewer")
	assert.False(t, ok, "child role must not leak into parent")
	_, ok = child.lookupRole("admin")
	assert.True(t, ok, "child must still see parent's role")
}
