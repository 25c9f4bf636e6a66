package domain

import (
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxNameLength        = 255
	MaxCallbackURLLength = 2048
)

var (
	ErrNameRequired       = errors.New("name is required")
	ErrNameTooLong        = errors.New("name must be at most 255 characters")
	ErrCallbackURLTooLong = errors.New("callback_url must be at most 2048 characters")
	ErrCallbackURLInvalid = errors.New("callback_url must be an absolute http or https URL")
)

// Tenant is an isolated customer account mapped to one Telegram account.
type Tenant struct {
	ID          string
	Name        string
	CallbackURL string // empty when no callback is configured
	CreatedAt   time.Time
}

// HasCallback reports whether inbound messages should be dispatched for this tenant.
func (t *Tenant) HasCallback() bool {
	return t != nil && t.CallbackURL != ""
}

// Validate trims and checks the tenant for persistence. Returns the first validation failure.
func (t *Tenant) Validate() error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return ErrNameRequired
	}
	if utf8.RuneCountInString(t.Name) > MaxNameLength {
		return ErrNameTooLong
	}
	cb, err := NormalizeCallbackURL(t.CallbackURL)
	if err != nil {
		return err
	}
	t.CallbackURL = cb
	return nil
}

// NormalizeCallbackURL trims u; empty means no callback. Non-empty values must be absolute http(s) URLs.
func NormalizeCallbackURL(u string) (string, error) {
	u = strings.TrimSpace(u)
	if u == "" {
		return "", nil
	}
	if len(u) > MaxCallbackURLLength {
		return "", ErrCallbackURLTooLong
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", ErrCallbackURLInvalid
	}
	return u, nil
}
