package render

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// ErrTooManyRedirects is returned when a render walks more hops than allowed.
var ErrTooManyRedirects = errors.New("too many redirects")

// DefaultMaxRedirects matches net/http's client limit.
const DefaultMaxRedirects = 10

// IsRedirect reports whether code is an HTTP redirect that carries a Location.
func IsRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// Resolve resolves a Location header against the URL that returned it.
func Resolve(base *url.URL, location string) (*url.URL, error) {
	loc, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse redirect location %q: %w", location, err)
	}
	return base.ResolveReference(loc), nil
}

// TooMany wraps ErrTooManyRedirects with the URL that exceeded the limit.
func TooMany(path string, limit int) error {
	return fmt.Errorf("render %s: %w (limit %d)", path, ErrTooManyRedirects, limit)
}
