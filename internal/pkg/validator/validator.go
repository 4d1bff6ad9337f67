package validator

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// Slugs that would shadow application routes.
var reservedSlugs = map[string]bool{
	"admin": true, "api": true, "billing": true, "health": true, "metrics": true,
	"organization-deactivated": true, "subscription-expired": true,
}

func Email(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("invalid email format")
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || !strings.Contains(parts[1], ".") {
		return errors.New("invalid email domain")
	}
	return nil
}

func Slug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return errors.New("slug must be 3-63 lowercase letters, digits or hyphens")
	}
	if reservedSlugs[slug] {
		return errors.New("slug is reserved")
	}
	return nil
}

func Password(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if len(password) > 72 {
		// bcrypt ignores everything past 72 bytes.
		return errors.New("password must be at most 72 bytes")
	}
	return nil
}
