// ABOUTME: This file normalises SOURCE_COOKIES_JSON into a cookie bundle
// ABOUTME: Accepts serialized strings and object entries; rewrites x.com domains

package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"media-archiver/models"
)

// cookieEntry is one raw object entry; "key" is accepted as an alias of "name".
type cookieEntry struct {
	Name   string `json:"name"`
	Key    string `json:"key"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// ParseCookies parses the SOURCE_COOKIES_JSON payload: a JSON array whose
// entries are either serialized "Name=Value; Domain=...; Path=...;" strings or
// objects. Domains x.com and .x.com are rewritten to .twitter.com; the rewrite
// count is returned for reporting.
func ParseCookies(raw string) (*models.CookieBundle, int, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, 0, fmt.Errorf("cookie payload is not a JSON array: %w", err)
	}

	bundle := &models.CookieBundle{}
	rewritten := 0

	for i, entry := range entries {
		var cookie models.Cookie
		var err error

		trimmed := strings.TrimSpace(string(entry))
		if strings.HasPrefix(trimmed, `"`) {
			var serialized string
			if err = json.Unmarshal(entry, &serialized); err == nil {
				cookie, err = parseSerializedCookie(serialized)
			}
		} else {
			var obj cookieEntry
			if err = json.Unmarshal(entry, &obj); err == nil {
				name := obj.Name
				if name == "" {
					name = obj.Key
				}
				cookie = models.Cookie{Name: name, Value: obj.Value, Domain: obj.Domain, Path: obj.Path}
			}
		}
		if err != nil {
			return nil, 0, fmt.Errorf("cookie entry %d: %w", i, err)
		}
		if cookie.Name == "" {
			return nil, 0, fmt.Errorf("cookie entry %d has no name", i)
		}

		if cookie.Domain == "x.com" || cookie.Domain == ".x.com" {
			cookie.Domain = ".twitter.com"
			rewritten++
		}

		bundle.Cookies = append(bundle.Cookies, cookie)
	}

	return bundle, rewritten, nil
}

// parseSerializedCookie parses "Name=Value; Domain=...; Path=...;" strings.
// The first segment carries the cookie name and value; later segments are
// matched case-insensitively against known attributes.
func parseSerializedCookie(serialized string) (models.Cookie, error) {
	segments := strings.Split(serialized, ";")
	if len(segments) == 0 || !strings.Contains(segments[0], "=") {
		return models.Cookie{}, fmt.Errorf("malformed serialized cookie %q", serialized)
	}

	name, value, _ := strings.Cut(strings.TrimSpace(segments[0]), "=")
	cookie := models.Cookie{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)}

	for _, segment := range segments[1:] {
		key, val, found := strings.Cut(strings.TrimSpace(segment), "=")
		if !found {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "domain":
			cookie.Domain = strings.TrimSpace(val)
		case "path":
			cookie.Path = strings.TrimSpace(val)
		}
	}

	return cookie, nil
}
