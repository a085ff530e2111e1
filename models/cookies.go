// ABOUTME: This file defines the normalised cookie bundle consumed by the source driver
// ABOUTME: Extracts (auth_token, ct0) pairs per domain and the flat name-indexed pair

package models

import (
	"fmt"
	"sort"
	"strings"
)

// Cookie is one normalised cookie entry from SOURCE_COOKIES_JSON.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// AuthPair is one (auth_token, ct0) credential pair usable for a request.
type AuthPair struct {
	AuthToken string
	CT0       string
}

// CookieBundle holds the parsed cookie set for the source platform.
type CookieBundle struct {
	Cookies []Cookie
}

// AuthPairs returns all distinct (auth_token, ct0) pairs: one per domain that
// carries both cookies, plus the flat pair from the name-indexed map. Order is
// deterministic (domains sorted, flat pair last when new).
func (b *CookieBundle) AuthPairs() []AuthPair {
	type partial struct{ auth, ct0 string }
	byDomain := make(map[string]*partial)
	flat := partial{}

	for _, c := range b.Cookies {
		switch c.Name {
		case "auth_token", "ct0":
		default:
			continue
		}
		p := byDomain[c.Domain]
		if p == nil {
			p = &partial{}
			byDomain[c.Domain] = p
		}
		if c.Name == "auth_token" {
			p.auth = c.Value
			flat.auth = c.Value
		} else {
			p.ct0 = c.Value
			flat.ct0 = c.Value
		}
	}

	domains := make([]string, 0, len(byDomain))
	for d := range byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	seen := make(map[AuthPair]bool)
	var pairs []AuthPair
	add := func(auth, ct0 string) {
		if auth == "" || ct0 == "" {
			return
		}
		pair := AuthPair{AuthToken: auth, CT0: ct0}
		if !seen[pair] {
			seen[pair] = true
			pairs = append(pairs, pair)
		}
	}

	for _, d := range domains {
		add(byDomain[d].auth, byDomain[d].ct0)
	}
	add(flat.auth, flat.ct0)

	return pairs
}

// Get returns the value of the first cookie with the given name.
func (b *CookieBundle) Get(name string) string {
	for _, c := range b.Cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// GuestToken returns the guest token cookie value, if any.
func (b *CookieBundle) GuestToken() string {
	return b.Get("gt")
}

// HeaderExtras renders every cookie except auth_token and ct0 as
// "name=value; ..." fragments for the request cookie header. The active
// auth pair supplies those two.
func (b *CookieBundle) HeaderExtras() string {
	var parts []string
	seen := make(map[string]bool)
	for _, c := range b.Cookies {
		if c.Name == "auth_token" || c.Name == "ct0" || seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		parts = append(parts, fmt.Sprintf("%s=%s", c.Name, c.Value))
	}
	return strings.Join(parts, "; ")
}
