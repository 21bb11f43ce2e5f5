package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostForCaseInsensitive(t *testing.T) {
	rt := NewRouter(NewHost("default"))
	vhost := NewHost("vhost")
	rt.AddHost("Example.com", vhost)

	assert.Same(t, vhost, rt.HostFor("EXAMPLE.COM"))
	assert.Same(t, vhost, rt.HostFor("example.com:8443"))
}

func TestHostForUnicodeMatchesPunycode(t *testing.T) {
	rt := NewRouter(NewHost("default"))
	vhost := NewHost("vhost")
	rt.AddHost("xn--mnchen-3ya.de", vhost) // "münchen.de"

	assert.Same(t, vhost, rt.HostFor("münchen.de"))
}

func TestHostForFallsBackToDefault(t *testing.T) {
	def := NewHost("default")
	rt := NewRouter(def)
	assert.Same(t, def, rt.HostFor("unregistered.example"))
}
