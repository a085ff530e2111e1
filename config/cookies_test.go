// ABOUTME: This file tests cookie payload normalisation
// ABOUTME: Covers object entries, serialized strings and domain rewriting

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCookies_ObjectEntries(t *testing.T) {
	bundle, rewritten, err := ParseCookies(`[
		{"name":"auth_token","value":"tok","domain":".twitter.com","path":"/"},
		{"key":"ct0","value":"csrf","domain":".twitter.com"}
	]`)

	require.NoError(t, err)
	assert.Zero(t, rewritten)
	require.Len(t, bundle.Cookies, 2)
	assert.Equal(t, "auth_token", bundle.Cookies[0].Name)
	assert.Equal(t, "ct0", bundle.Cookies[1].Name, "key is accepted as a name alias")
	assert.Equal(t, "csrf", bundle.Get("ct0"))
}

func TestParseCookies_SerializedEntries(t *testing.T) {
	bundle, _, err := ParseCookies(`["auth_token=tok; Domain=.twitter.com; Path=/;", "ct0=csrf; domain=.twitter.com"]`)

	require.NoError(t, err)
	require.Len(t, bundle.Cookies, 2)
	assert.Equal(t, "tok", bundle.Get("auth_token"))
	assert.Equal(t, ".twitter.com", bundle.Cookies[0].Domain)
	assert.Equal(t, "/", bundle.Cookies[0].Path)
	assert.Equal(t, ".twitter.com", bundle.Cookies[1].Domain, "attribute names match case-insensitively")
}

func TestParseCookies_RewritesXDomains(t *testing.T) {
	bundle, rewritten, err := ParseCookies(`[
		{"name":"auth_token","value":"tok","domain":"x.com"},
		{"name":"ct0","value":"csrf","domain":".x.com"},
		{"name":"gt","value":"g","domain":".twitter.com"}
	]`)

	require.NoError(t, err)
	assert.Equal(t, 2, rewritten)
	assert.Equal(t, ".twitter.com", bundle.Cookies[0].Domain)
	assert.Equal(t, ".twitter.com", bundle.Cookies[1].Domain)
	assert.Equal(t, ".twitter.com", bundle.Cookies[2].Domain)
}

func TestParseCookies_RejectsMalformedInput(t *testing.T) {
	_, _, err := ParseCookies(`{"not":"an array"}`)
	assert.Error(t, err)

	_, _, err = ParseCookies(`["no-equals-sign-here"]`)
	assert.Error(t, err)

	_, _, err = ParseCookies(`[{"value":"nameless"}]`)
	assert.Error(t, err)
}

func TestParseCookies_MixedEntries(t *testing.T) {
	bundle, _, err := ParseCookies(`[
		{"name":"auth_token","value":"tok","domain":".twitter.com"},
		"ct0=csrf; Domain=.twitter.com;"
	]`)

	require.NoError(t, err)
	pairs := bundle.AuthPairs()
	require.Len(t, pairs, 1)
	assert.Equal(t, "tok", pairs[0].AuthToken)
	assert.Equal(t, "csrf", pairs[0].CT0)
}
