package site

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks fatal, pre-run configuration problems.
	ErrConfiguration = errors.New("improperly configured")
	// ErrUnusableURL marks URLs that neither end in "/" nor carry an extension.
	ErrUnusableURL = errors.New("does not end in a forward-slash ('/'), nor does it have a file extension")
	// ErrTemplateNotFound is returned by template renderers when no candidate exists.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrUnsafeRedirect marks redirect targets rejected by the allowed-hosts check.
	ErrUnsafeRedirect = errors.New("unsafe redirect target")
	// ErrNotFound is returned by content stores for missing names.
	ErrNotFound = errors.New("content not found")
)

// CollectionError reports a producer that yielded an unusable URL.
type CollectionError struct {
	Producer string
	URL      string
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("producer %s provided the URL %q which %v", e.Producer, e.URL, ErrUnusableURL)
}

func (e *CollectionError) Unwrap() error { return ErrUnusableURL }

// ReaderError reports an unusable URL reaching filename derivation.
type ReaderError struct {
	URL string
}

func (e *ReaderError) Error() string {
	return fmt.Sprintf("the URL %q %v", e.URL, ErrUnusableURL)
}

func (e *ReaderError) Unwrap() error { return ErrUnusableURL }

// FetchError reports a non-200 terminal response.
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("got %d response for %s", e.StatusCode, e.URL)
}
