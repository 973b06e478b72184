package auth

import (
	"errors"
	"regexp"
	"strings"

	"github.com/badoux/checkmail"

	"github.com/charleshuang3/finansecure/internal/password"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,32}$`)
)

const (
	maxEmailLength = 255
	maxNameLength  = 100

	allowedSpecialChars = `!@#$%^&*()_+\-=[]{};':"\|,.<>/?`
)

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return errors.New("Password must be at least 8 characters long.")
	}
	if len(pw) > password.MaxLength {
		return errors.New("Password must be at most 72 bytes long.")
	}

	hasNumber := false
	hasLower := false
	hasUpper := false
	hasSpecial := false

	for _, char := range pw {
		if char >= '0' && char <= '9' {
			hasNumber = true
		} else if char >= 'a' && char <= 'z' {
			hasLower = true
		} else if char >= 'A' && char <= 'Z' {
			hasUpper = true
		} else if strings.ContainsRune(allowedSpecialChars, char) {
			hasSpecial = true
		} else {
			// Character is not in any of the allowed groups
			return errors.New("Password contains disallowed characters.")
		}
	}

	if !hasNumber {
		return errors.New("Password must contain at least one number.")
	}
	if !hasLower {
		return errors.New("Password must contain at least one lowercase letter.")
	}
	if !hasUpper {
		return errors.New("Password must contain at least one uppercase letter.")
	}
	if !hasSpecial {
		return errors.New("Password must contain at least one special character.")
	}

	return nil
}

// fieldErrors collects validation messages per request field.
type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

func validateRegister(req *RegisterRequest) fieldErrors {
	errs := fieldErrors{}

	if !usernameRegex.MatchString(req.Username) {
		errs.add("username", "Invalid username format. Must be 3-32 characters and contain only letters, numbers, hyphens, and underscores.")
	}

	if len(req.Email) > maxEmailLength {
		errs.add("email", "Email is too long.")
	} else if err := checkmail.ValidateFormat(req.Email); err != nil {
		errs.add("email", "Invalid email format.")
	}

	if len(req.FirstName) > maxNameLength {
		errs.add("firstName", "First name is too long.")
	}
	if len(req.LastName) > maxNameLength {
		errs.add("lastName", "Last name is too long.")
	}

	if err := validatePassword(req.Password); err != nil {
		errs.add("password", err.Error())
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
