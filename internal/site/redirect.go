package site

import (
	"net/url"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// IsSafeRedirect reports whether target is a relative URL or points at one
// of the allowed hosts over http(s). Backslashes are checked both as-is and
// normalized to slashes since browsers treat them interchangeably.
func IsSafeRedirect(target string, allowedHosts []string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	return allowedHostAndScheme(target, allowedHosts) &&
		allowedHostAndScheme(strings.ReplaceAll(target, `\`, "/"), allowedHosts)
}

func allowedHostAndScheme(target string, allowedHosts []string) bool {
	if strings.HasPrefix(target, "///") {
		return false
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if u.Host == "" && u.Scheme != "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(target)
	if unicode.In(first, unicode.Cc, unicode.Cf, unicode.Co, unicode.Cs) {
		return false
	}
	scheme := u.Scheme
	if scheme == "" && u.Host != "" {
		scheme = "http"
	}
	hostOK := u.Host == "" || slices.Contains(allowedHosts, u.Host)
	schemeOK := scheme == "" || scheme == "http" || scheme == "https"
	return hostOK && schemeOK
}

// PathOf returns the path component of a URL, or the input unchanged when it
// cannot be parsed.
func PathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}
